package docstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docseek/internal/domain"
)

func TestPutGetSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "index.db")
	s, err := Open(path)
	require.NoError(t, err)

	doc := domain.Document{
		ID:       "id-1",
		Content:  "hello",
		Metadata: map[string]any{domain.MetaSource: "a.pdf", domain.MetaPage: 2},
	}
	require.NoError(t, s.Put([]domain.Document{doc}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get("id-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "a.pdf", got.Metadata[domain.MetaSource])
	// JSON numbers come back as float64
	assert.Equal(t, float64(2), got.Metadata[domain.MetaPage])

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutRejectsMissingID(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer s.Close()
	assert.Error(t, s.Put([]domain.Document{{Content: "x"}}))
}
