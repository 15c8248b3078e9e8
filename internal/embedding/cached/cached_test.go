package cached

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct{ queries int }

func (c *countingEmbedder) Name() string   { return "counting" }
func (c *countingEmbedder) Dimension() int { return 1 }
func (c *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}
func (c *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	c.queries++
	return []float32{float32(len(text))}, nil
}

func TestEmbedQueryIsCached(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := New(inner, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := e.EmbedQuery(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, []float32{3}, v)
	}
	assert.Equal(t, 1, inner.queries)

	_, _ = e.EmbedQuery(ctx, "x")
	_, _ = e.EmbedQuery(ctx, "yy")
	// "abc" was evicted by the two newer entries
	_, _ = e.EmbedQuery(ctx, "abc")
	assert.Equal(t, 4, inner.queries)
	assert.Equal(t, "counting", e.Name())
	assert.Same(t, inner, e.Unwrap())
}

func TestEmbedQueryReturnsPrivateCopies(t *testing.T) {
	e, err := New(&countingEmbedder{}, 4)
	require.NoError(t, err)
	ctx := context.Background()

	v, err := e.EmbedQuery(ctx, "abcd")
	require.NoError(t, err)
	v[0] = -1

	again, err := e.EmbedQuery(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, again)
	again[0] = -2

	third, err := e.EmbedQuery(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, third)
	assert.Equal(t, []string{cacheKey("counting", "abcd")}, e.cache.Keys())
}
