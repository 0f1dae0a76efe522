package timewindow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/umithardal/kafka-to-nexus/timewindow"
)

func TestWindow_Test_Boundaries(t *testing.T) {
	w := timewindow.Window{Start: 0, StartLeeway: 0, Stop: 1000, StopLeeway: 0}

	assert.Equal(t, timewindow.Accept, w.Test(0))
	assert.Equal(t, timewindow.BeforeWindow, w.Test(-1))
	assert.Equal(t, timewindow.Accept, w.Test(1000))
	assert.Equal(t, timewindow.AfterWindow, w.Test(1001))
}

func TestWindow_Test_NoStopYet(t *testing.T) {
	w := timewindow.Window{Start: 0, StartLeeway: 0}
	assert.Equal(t, timewindow.Accept, w.Test(1 << 40))
}

func TestWindow_Test_Leeway(t *testing.T) {
	w := timewindow.Window{Start: 1000, StartLeeway: 100, Stop: 2000, StopLeeway: 100}
	assert.Equal(t, timewindow.Accept, w.Test(900))
	assert.Equal(t, timewindow.BeforeWindow, w.Test(899))
	assert.Equal(t, timewindow.Accept, w.Test(2100))
	assert.Equal(t, timewindow.AfterWindow, w.Test(2101))
}

func TestMillisNanosRoundTrip(t *testing.T) {
	ms := int64(1_700_000_000_123)
	assert.Equal(t, ms, timewindow.NanosToMillis(timewindow.MillisToNanos(ms)))
}

func TestWindow_PastStopGrace(t *testing.T) {
	w := timewindow.NewFromMillis(0, 0, 1000, 0)
	stopTime := time.UnixMilli(1000)

	assert.False(t, w.PastStopGrace(stopTime.Add(500*time.Millisecond), time.Second))
	assert.True(t, w.PastStopGrace(stopTime.Add(1500*time.Millisecond), time.Second))
}

func TestWindow_PastStopGrace_NoStop(t *testing.T) {
	w := timewindow.Window{}
	assert.False(t, w.PastStopGrace(time.Now(), time.Second))
}
