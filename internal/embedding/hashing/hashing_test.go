package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestEmbedIsNormalizedAndDeterministic(t *testing.T) {
	e := NewEmbedder(128)
	ctx := context.Background()

	vecs, err := e.EmbedDocuments(ctx, []string{"quarterly finance report", "quarterly finance report"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Len(t, vecs[0], 128)

	assert.InDelta(t, 1.0, math.Sqrt(dot(vecs[0], vecs[0])), 1e-5)
	assert.Equal(t, vecs[0], vecs[1])
}

func TestSimilarTextsScoreHigher(t *testing.T) {
	e := NewEmbedder(256)
	ctx := context.Background()

	q, err := e.EmbedQuery(ctx, "finance report march")
	require.NoError(t, err)
	docs, err := e.EmbedDocuments(ctx, []string{
		"The March finance report lists all invoices.",
		"Holiday photos from the beach trip.",
	})
	require.NoError(t, err)

	assert.Greater(t, dot(q, docs[0]), dot(q, docs[1]))
}

func TestStopwordOnlyQueryIsZeroVector(t *testing.T) {
	e := NewEmbedder(64)
	v, err := e.EmbedQuery(context.Background(), "the and of")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).EmbedDocuments(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}
