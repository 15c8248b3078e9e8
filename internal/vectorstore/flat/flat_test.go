package flat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchOrdersByDistance(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Add(
		[]string{"far", "near", "mid"},
		[][]float32{{10, 0}, {1, 0}, {3, 0}},
	))

	got, err := ix.Search([]float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, float32(1), got[0].Distance)
	assert.Equal(t, "mid", got[1].ID)
	assert.Equal(t, float32(9), got[1].Distance)

	all, err := ix.Search([]float32{0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAddRejectsWrongDimension(t *testing.T) {
	ix, err := New(3)
	require.NoError(t, err)
	err = ix.Add([]string{"a"}, [][]float32{{1, 2}})
	assert.ErrorIs(t, err, ErrDimension)
	assert.Equal(t, 0, ix.Len())

	_, err = ix.Search([]float32{1}, 1)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestWriteReadRoundTrip(t *testing.T) {
	ix, err := New(3)
	require.NoError(t, err)
	require.NoError(t, ix.Add(
		[]string{"a", "b", "c"},
		[][]float32{{0.1, 0.2, 0.3}, {1, 0, 0}, {0, 1, 0}},
	))
	path := filepath.Join(t.TempDir(), "idx", "index.faiss")
	require.NoError(t, ix.WriteFile(path))

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Dimension())
	assert.Equal(t, 3, loaded.Len())

	q := []float32{0.9, 0.1, 0}
	want, _ := ix.Search(q, 3)
	got, _ := loaded.Search(q, 3)
	assert.Equal(t, want, got)
}

func TestWriteFileReplacesExistingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.faiss")
	first, err := New(2)
	require.NoError(t, err)
	require.NoError(t, first.Add([]string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, first.WriteFile(path))

	second, err := New(2)
	require.NoError(t, err)
	require.NoError(t, second.Add([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, second.WriteFile(path))

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.faiss")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an index"), 0o644))
	_, err := ReadFile(path)
	assert.Error(t, err)
}
