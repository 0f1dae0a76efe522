package master

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETATracker_NoEstimateOnFirstObservation(t *testing.T) {
	tracker := newETATracker()
	now := time.Unix(1000, 0)
	_, ok := tracker.estimate("job-1", now, now)
	assert.False(t, ok)
}

func TestETATracker_EstimatesFromObservedDelta(t *testing.T) {
	tracker := newETATracker()
	base := time.Unix(1000, 0)

	_, ok := tracker.estimate("job-1", base, base)
	require.False(t, ok)

	second := base.Add(2 * time.Second)
	eta, ok := tracker.estimate("job-1", second, second)
	require.True(t, ok)
	assert.Equal(t, second.Add(2*time.Second), eta)
}

func TestETATracker_NoEstimateWhenLastMessageZero(t *testing.T) {
	tracker := newETATracker()
	_, ok := tracker.estimate("job-1", time.Time{}, time.Now())
	assert.False(t, ok)
}

func TestBuildStatus_EmptyMasterProducesEmptyFiles(t *testing.T) {
	m := &Master{cfg: Config{ServiceID: "svc"}, jobs: nil}
	doc := m.buildStatus(newETATracker())
	assert.Equal(t, "stream_master_status", doc.Type)
	assert.Equal(t, "svc", doc.ServiceID)
	assert.Empty(t, doc.Files)
}
