package master

import (
	"sync"
	"time"
)

// statusDocument is the aggregate status published on StatusCadence, per
// spec.md §4.7 and the supplemented next-message-ETA field from
// original_source's StatusWriter.
type statusDocument struct {
	Type      string               `json:"type"`
	ServiceID string               `json:"service_id"`
	Timestamp int64                `json:"timestamp_ms"`
	Files     map[string]jobStatus `json:"files"`
}

type jobStatus struct {
	State           string `json:"state"`
	MessagesWritten int64  `json:"messages_written"`
	BytesWritten    int64  `json:"bytes_written"`
	NextMsgEtaMs    int64  `json:"next_message_eta_ms,omitempty"`
}

// etaTracker estimates each job's next-message arrival time from the delta
// between the two most recently observed last-write timestamps on that job,
// mirroring StatusWriter's rolling estimate in the original implementation.
type etaTracker struct {
	mu    sync.Mutex
	last  map[string]time.Time
	delta map[string]time.Duration
}

func newETATracker() *etaTracker {
	return &etaTracker{
		last:  make(map[string]time.Time),
		delta: make(map[string]time.Duration),
	}
}

// estimate first folds the freshly observed lastMessageAt into the tracker
// (updating the recorded delta when it advanced past the previous value),
// then returns lastMessageAt plus that delta as the job's next-message time.
func (t *etaTracker) estimate(jobID string, lastMessageAt, now time.Time) (time.Time, bool) {
	if lastMessageAt.IsZero() {
		return time.Time{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, hadPrev := t.last[jobID]
	t.last[jobID] = lastMessageAt

	if hadPrev && lastMessageAt.After(prev) {
		t.delta[jobID] = lastMessageAt.Sub(prev)
	}

	d, ok := t.delta[jobID]
	if !ok {
		return time.Time{}, false
	}
	eta := lastMessageAt.Add(d)
	if eta.Before(now) {
		return time.Time{}, false
	}
	return eta, true
}

// buildStatus assembles the aggregate status document from every job
// currently tracked by m, per spec.md §4.7's "status published at a
// configured cadence" requirement.
func (m *Master) buildStatus(tracker *etaTracker) statusDocument {
	now := time.Now()
	doc := statusDocument{
		Type:      "stream_master_status",
		ServiceID: m.cfg.ServiceID,
		Timestamp: now.UnixMilli(),
		Files:     make(map[string]jobStatus),
	}

	for _, ctrl := range m.jobSnapshot() {
		stats := ctrl.Stats()
		js := jobStatus{
			State:           ctrl.State().String(),
			MessagesWritten: stats.MessagesWritten,
			BytesWritten:    stats.BytesWritten,
		}
		if eta, ok := tracker.estimate(ctrl.JobID(), stats.LastMessageAt, now); ok {
			js.NextMsgEtaMs = eta.UnixMilli()
		}
		doc.Files[ctrl.JobID()] = js
	}
	return doc
}
