package ep00_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
	"github.com/umithardal/kafka-to-nexus/message"
	"github.com/umithardal/kafka-to-nexus/writermodule"
	"github.com/umithardal/kafka-to-nexus/writermodule/ep00"
)

func payloadFor(tag string, body []byte) []byte {
	buf := make([]byte, 8+len(body))
	copy(buf[4:8], tag)
	copy(buf[8:], body)
	return buf
}

func TestEp00_InitAndWrite(t *testing.T) {
	backend := filestore.NewMemoryBackend()
	sink := filesink.New("job-1", backend, 4, nil, nil)

	m, err := writermodule.New(ep00.Tag)
	require.NoError(t, err)
	require.NoError(t, m.InitFor(sink, "/entry/motor/connection", nil))

	body, _ := json.Marshal(map[string]any{"source_name": "motor-1", "timestamp": 5000, "status": "CONNECTED"})
	msg := message.New(payloadFor(ep00.Tag, body), "instrument.status", 0, 0, 5000)

	result := m.Write(backend, msg)
	require.True(t, result.OK)

	assert.Equal(t, []any{"CONNECTED"}, backend.Rows("/entry/motor/connection/connection_status"))
	assert.Equal(t, []any{uint64(5000)}, backend.Rows("/entry/motor/connection/connection_status_time"))
}
