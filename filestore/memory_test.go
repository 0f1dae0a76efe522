package filestore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umithardal/kafka-to-nexus/filestore"
)

func TestMemoryBackend_GroupsAndDatasets(t *testing.T) {
	b := filestore.NewMemoryBackend()
	require.NoError(t, b.CreateGroup("/entry"))
	require.NoError(t, b.CreateDataset("/entry/n", filestore.DatasetSpec{Type: filestore.DTypeInt32}))

	idx, err := b.AppendRow("/entry/n", int32(42))
	require.NoError(t, err)
	assert.Equal(t, int64(0), idx)

	idx, err = b.AppendRow("/entry/n", int32(43))
	require.NoError(t, err)
	assert.Equal(t, int64(1), idx)

	assert.True(t, b.HasGroup("/entry"))
	assert.Equal(t, []any{int32(42), int32(43)}, b.Rows("/entry/n"))
}

func TestMemoryBackend_Attributes(t *testing.T) {
	b := filestore.NewMemoryBackend()
	require.NoError(t, b.WriteAttribute("/", "HDF5_Version", "1.10"))

	v, ok := b.Attribute("/", "HDF5_Version")
	require.True(t, ok)
	assert.Equal(t, "1.10", v)
}

func TestMemoryBackend_LinkResolution(t *testing.T) {
	b := filestore.NewMemoryBackend()
	require.NoError(t, b.CreateGroup("/entry/instrument"))
	require.NoError(t, b.CreateLink("/entry/links/instrument", "../instrument"))

	_, ok := b.ResolveLink("/entry/links/instrument")
	assert.False(t, ok, "link should not resolve before Finalize")

	require.NoError(t, b.Finalize())

	target, ok := b.ResolveLink("/entry/links/instrument")
	require.True(t, ok)
	assert.Equal(t, "/entry/instrument", target)
}

func TestMemoryBackend_Close(t *testing.T) {
	b := filestore.NewMemoryBackend()
	assert.False(t, b.Closed())
	require.NoError(t, b.Close())
	assert.True(t, b.Closed())
}
