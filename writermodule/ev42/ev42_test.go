package ev42_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/message"
	"github.com/umithardal/kafka-to-nexus/writermodule"
	"github.com/umithardal/kafka-to-nexus/writermodule/ev42"
)

func payloadFor(tag string, body []byte) []byte {
	buf := make([]byte, 8+len(body))
	copy(buf[4:8], tag)
	copy(buf[8:], body)
	return buf
}

func TestEv42_InitAndWrite(t *testing.T) {
	backend := filestore.NewMemoryBackend()
	sink := filesink.New("job-1", backend, 4, nil, nil)

	m, err := writermodule.New(ev42.Tag)
	require.NoError(t, err)
	require.NoError(t, m.InitFor(sink, "/entry/detector/events", nil))

	body, _ := json.Marshal(map[string]any{
		"source_name":    "detector-1",
		"pulse_time":     1000,
		"time_of_flight": []uint32{10, 20, 30},
		"detector_id":    []uint32{1, 2, 3},
	})
	msg := message.New(payloadFor(ev42.Tag, body), "instrument.events", 0, 0, 1000)

	result := m.Write(backend, msg)
	require.True(t, result.OK)

	assert.Equal(t, []any{uint32(10), uint32(20), uint32(30)}, backend.Rows("/entry/detector/events/event_time_offset"))
	assert.Equal(t, []any{uint32(1), uint32(2), uint32(3)}, backend.Rows("/entry/detector/events/event_id"))
	assert.Equal(t, []any{uint32(0)}, backend.Rows("/entry/detector/events/event_index"))
}

func TestEv42_Write_LengthMismatch(t *testing.T) {
	backend := filestore.NewMemoryBackend()
	sink := filesink.New("job-2", backend, 4, nil, nil)
	m, err := writermodule.New(ev42.Tag)
	require.NoError(t, err)
	require.NoError(t, m.InitFor(sink, "/entry/x", nil))

	body, _ := json.Marshal(map[string]any{
		"time_of_flight": []uint32{1, 2},
		"detector_id":    []uint32{1},
	})
	msg := message.New(payloadFor(ev42.Tag, body), "topic", 0, 0, 1000)
	result := m.Write(backend, msg)
	assert.False(t, result.OK)
	assert.Error(t, result.Error)
}
