// Package timewindow implements the start/stop time filter every job
// applies to incoming messages. Internally times are signed 64-bit
// nanoseconds; the command boundary (master, config) works in milliseconds
// and must convert at ingress with MillisToNanos / NanosToMillis.
package timewindow

import "time"

// Decision is the outcome of testing a message timestamp against a Window.
type Decision int

const (
	// Accept means the timestamp falls inside [start-leeway, stop+leeway].
	Accept Decision = iota
	// BeforeWindow means the timestamp is earlier than start-leeway; the
	// message is dropped silently.
	BeforeWindow
	// AfterWindow means the timestamp is later than stop+leeway; the
	// source that produced it must be removed.
	AfterWindow
)

// Window is a job's time filter, in nanoseconds since the Unix epoch.
type Window struct {
	Start       int64
	StartLeeway int64
	Stop        int64
	StopLeeway  int64
}

// MillisToNanos converts a millisecond timestamp, as carried on the wire by
// FileWriter_new/_stop commands, to the internal nanosecond representation.
func MillisToNanos(ms int64) int64 {
	return ms * int64(time.Millisecond)
}

// NanosToMillis converts an internal nanosecond timestamp back to
// milliseconds for status reporting.
func NanosToMillis(ns int64) int64 {
	return ns / int64(time.Millisecond)
}

// NewFromMillis builds a Window from millisecond command-boundary values.
// A zero stop means "open-ended", i.e. no stop time set yet.
func NewFromMillis(startMs, startLeewayMs, stopMs, stopLeewayMs int64) Window {
	return Window{
		Start:       MillisToNanos(startMs),
		StartLeeway: MillisToNanos(startLeewayMs),
		Stop:        MillisToNanos(stopMs),
		StopLeeway:  MillisToNanos(stopLeewayMs),
	}
}

// lowerBound returns start-leeway.
func (w Window) lowerBound() int64 { return w.Start - w.StartLeeway }

// upperBound returns stop+leeway. HasStop must be checked before relying on
// this value meaning anything.
func (w Window) upperBound() int64 { return w.Stop + w.StopLeeway }

// HasStop reports whether a stop time has been set for this window.
func (w Window) HasStop() bool { return w.Stop != 0 }

// Test classifies a nanosecond timestamp against the window boundaries.
// ts == lowerBound is Accept; ts == lowerBound-1 is BeforeWindow.
// ts == upperBound is Accept; ts == upperBound+1 is AfterWindow.
func (w Window) Test(ts int64) Decision {
	if ts < w.lowerBound() {
		return BeforeWindow
	}
	if w.HasStop() && ts > w.upperBound() {
		return AfterWindow
	}
	return Accept
}

// PastStopGrace reports whether wall-clock time now has passed
// stop+after_stop_grace, the trigger for the Job Controller's
// stop-time-reached teardown path.
func (w Window) PastStopGrace(now time.Time, afterStopGrace time.Duration) bool {
	if !w.HasStop() {
		return false
	}
	stopWall := time.Unix(0, w.Stop)
	return now.After(stopWall.Add(afterStopGrace))
}
