package f142_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/message"
	"github.com/umithardal/kafka-to-nexus/writermodule"
	"github.com/umithardal/kafka-to-nexus/writermodule/f142"
)

func payloadFor(tag string, body []byte) []byte {
	buf := make([]byte, 8+len(body))
	copy(buf[4:8], tag)
	copy(buf[8:], body)
	return buf
}

func TestF142_InitAndWrite(t *testing.T) {
	backend := filestore.NewMemoryBackend()
	require.NoError(t, backend.CreateGroup("/entry/temperature"))
	sink := filesink.New("job-1", backend, 4, nil, nil)

	m, err := writermodule.New(f142.Tag)
	require.NoError(t, err)
	require.NoError(t, m.ParseConfig(json.RawMessage(`{"source":"sensor-1","type":"double"}`)))
	require.NoError(t, m.InitFor(sink, "/entry/temperature", json.RawMessage(`{"units":"K"}`)))

	units, ok := backend.Attribute("/entry/temperature", "units")
	require.True(t, ok)
	assert.Equal(t, "K", units)

	body, _ := json.Marshal(map[string]any{"source_name": "sensor-1", "timestamp": 1000, "value": 42.5})
	msg := message.New(payloadFor(f142.Tag, body), "instrument.motion", 0, 0, 1000)

	result := m.Write(backend, msg)
	require.True(t, result.OK)
	assert.Equal(t, int64(0), result.RowIndex)

	assert.Equal(t, []any{42.5}, backend.Rows("/entry/temperature/value"))
	assert.Equal(t, []any{uint64(1000)}, backend.Rows("/entry/temperature/time"))
}

func TestF142_Write_WrongTag(t *testing.T) {
	backend := filestore.NewMemoryBackend()
	sink := filesink.New("job-2", backend, 4, nil, nil)
	m, err := writermodule.New(f142.Tag)
	require.NoError(t, err)
	require.NoError(t, m.InitFor(sink, "/entry/x", nil))

	msg := message.New(payloadFor("ev42", []byte("{}")), "topic", 0, 0, 1000)
	result := m.Write(backend, msg)
	assert.False(t, result.OK)
	assert.Error(t, result.Error)
}
