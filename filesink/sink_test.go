package filesink_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/filesink"
	"github.com/umithardal/kafka-to-nexus/filestore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testTemplate = `{
  "type": "group",
  "name": "",
  "children": [
    {
      "type": "group",
      "name": "entry",
      "attributes": [{"name": "NX_class", "value": "NXentry"}],
      "children": [
        {
          "type": "dataset",
          "name": "title",
          "dataset": {"type": "string"},
          "values": "my experiment"
        },
        {
          "type": "stream",
          "name": "temperature",
          "topic": "instrument.motion",
          "source_name": "sensor-1",
          "writer_module": "f142"
        },
        {
          "type": "link",
          "name": "alias",
          "target": "../instrument"
        },
        {
          "type": "unsupported_future_node",
          "name": "ignored"
        }
      ]
    }
  ]
}`

func TestSink_Initialize_StaticTreeAndPlaceholders(t *testing.T) {
	backend := filestore.NewMemoryBackend()
	s := filesink.New("job-1", backend, 16, discardLogger(), nil)

	placeholders, err := s.Initialize(json.RawMessage(testTemplate))
	require.NoError(t, err)

	require.Len(t, placeholders, 1)
	assert.Equal(t, "/entry/temperature", placeholders[0].Path)
	assert.Equal(t, "instrument.motion", placeholders[0].Topic)
	assert.Equal(t, "sensor-1", placeholders[0].SourceName)
	assert.Equal(t, "f142", placeholders[0].WriterModule)

	assert.True(t, backend.HasGroup("/entry"))
	nxClass, ok := backend.Attribute("/entry", "NX_class")
	require.True(t, ok)
	assert.Equal(t, "NXentry", nxClass)

	assert.Equal(t, []any{"my experiment"}, backend.Rows("/entry/title"))

	_, hasVersion := backend.Attribute("/", "HDF5_Version")
	assert.True(t, hasVersion)
	_, hasFileTime := backend.Attribute("/", "file_time")
	assert.True(t, hasFileTime)
}

func TestSink_Initialize_MalformedTemplateIsFatal(t *testing.T) {
	backend := filestore.NewMemoryBackend()
	s := filesink.New("job-2", backend, 16, discardLogger(), nil)

	_, err := s.Initialize(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestSink_SubmitAndFlush(t *testing.T) {
	backend := filestore.NewMemoryBackend()
	require.NoError(t, backend.CreateDataset("/entry/value", filestore.DatasetSpec{Type: filestore.DTypeDouble}))

	s := filesink.New("job-3", backend, 16, discardLogger(), nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	future, err := s.Submit(func(b filestore.Backend) (filesink.Result, error) {
		idx, err := b.AppendRow("/entry/value", 1.5)
		return filesink.Result{RowIndex: idx}, err
	})
	require.NoError(t, err)

	result, err := future.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.RowIndex)

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, []any{1.5}, backend.Rows("/entry/value"))

	require.NoError(t, s.Finalize(time.Second))
	assert.True(t, backend.Closed())
}

func TestSink_QueueDepthReflectsPendingOps(t *testing.T) {
	backend := filestore.NewMemoryBackend()
	s := filesink.New("job-4", backend, 16, discardLogger(), nil)
	assert.Equal(t, 0, s.QueueDepth())
}
