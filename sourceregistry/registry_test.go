package sourceregistry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/sourceregistry"
)

func TestHash_StableAndDistinct(t *testing.T) {
	h1 := sourceregistry.Hash("instrument.motion", "sensor-1")
	h2 := sourceregistry.Hash("instrument.motion", "sensor-1")
	h3 := sourceregistry.Hash("instrument.motion", "sensor-2")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestRegistry_RegisterLookupRemove(t *testing.T) {
	r := sourceregistry.New()
	hash := sourceregistry.Hash("instrument.motion", "sensor-1")
	entry := &sourceregistry.Entry{Topic: "instrument.motion", SourceName: "sensor-1", Hash: hash}

	require.NoError(t, r.Register(entry))

	got, ok := r.Lookup("instrument.motion", hash)
	require.True(t, ok)
	assert.Same(t, entry, got)

	assert.False(t, r.TopicEmpty("instrument.motion"))

	assert.True(t, r.Remove("instrument.motion", hash))
	assert.False(t, r.Remove("instrument.motion", hash), "remove must be idempotent")

	_, ok = r.Lookup("instrument.motion", hash)
	assert.False(t, ok)
	assert.True(t, r.TopicEmpty("instrument.motion"))
}

func TestRegistry_DuplicateRegisterFails(t *testing.T) {
	r := sourceregistry.New()
	hash := sourceregistry.Hash("t", "s")
	entry := &sourceregistry.Entry{Topic: "t", SourceName: "s", Hash: hash}
	require.NoError(t, r.Register(entry))
	assert.Error(t, r.Register(entry))
}

func TestEntry_StatsAndDedup(t *testing.T) {
	entry := &sourceregistry.Entry{Topic: "t", SourceName: "s"}
	assert.Equal(t, int64(0), entry.LastTimestamp())

	entry.RecordWrite(1000, 16)
	assert.Equal(t, int64(1000), entry.LastTimestamp())

	entry.RecordDuplicateSkipped()
	snap := entry.Snapshot()
	assert.Equal(t, int64(1), snap.MessagesWritten)
	assert.Equal(t, int64(16), snap.BytesWritten)
	assert.Equal(t, int64(1), snap.DuplicatesSkipped)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := sourceregistry.New()
	hash1 := sourceregistry.Hash("t", "s1")
	hash2 := sourceregistry.Hash("t", "s2")
	require.NoError(t, r.Register(&sourceregistry.Entry{Topic: "t", SourceName: "s1", Hash: hash1}))
	require.NoError(t, r.Register(&sourceregistry.Entry{Topic: "t", SourceName: "s2", Hash: hash2}))

	snap := r.Snapshot("t")
	assert.Len(t, snap, 2)
	assert.ElementsMatch(t, []string{"t"}, r.Topics())
}
