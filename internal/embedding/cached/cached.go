// Package cached memoizes query embeddings in an LRU cache.
package cached

import (
	"context"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"docseek/internal/domain"
)

// Embedder wraps another embedder and caches EmbedQuery results keyed by the
// inner embedder's name and the query text. Callers get their own copy of a
// cached vector. Document embeddings pass straight through.
type Embedder struct {
	inner domain.Embedder
	cache *lru.Cache[string, []float32]
}

// New wraps inner with a cache holding up to size query vectors.
func New(inner domain.Embedder, size int) (*Embedder, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Embedder{inner: inner, cache: c}, nil
}

func (e *Embedder) Name() string   { return e.inner.Name() }
func (e *Embedder) Dimension() int { return e.inner.Dimension() }

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.EmbedDocuments(ctx, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(e.inner.Name(), text)
	if v, ok := e.cache.Get(key); ok {
		return slices.Clone(v), nil
	}
	v, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, slices.Clone(v))
	return v, nil
}

func cacheKey(name, text string) string { return name + "\x00" + text }

// Unwrap returns the wrapped embedder.
func (e *Embedder) Unwrap() domain.Embedder { return e.inner }
