package hashing

import (
	"context"
	"hash/fnv"
	"math"

	"docseek/internal/summarizer"
)

// Embedder implements a feature-hashing bag-of-words vectorizer with
// sublinear term frequency. It needs no corpus preparation, so vectors stay
// comparable across ingestion runs of a persisted index.
type Embedder struct {
	dimension int
	stopwords map[string]struct{}
}

// NewEmbedder creates a hashing embedder producing vectors of the given dimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = 512
	}
	return &Embedder{
		dimension: dimension,
		stopwords: summarizer.Stopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// EmbedDocuments embeds each text independently.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(t)
	}
	return out, nil
}

// EmbedQuery embeds a single query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *Embedder) embed(text string) []float32 {
	tf := make(map[int]float64)
	for _, tok := range summarizer.Tokens(text) {
		if _, isStop := e.stopwords[tok]; isStop {
			continue
		}
		idx, sign := e.bucket(tok)
		tf[idx] += sign
	}

	vec := make([]float32, e.dimension)
	norm := 0.0
	for idx, v := range tf {
		if v == 0 {
			continue
		}
		w := math.Copysign(1+math.Log(math.Abs(v)), v)
		vec[idx] = float32(w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

// bucket hashes a token to an index and a sign; the sign bit reduces the
// bias introduced by collisions.
func (e *Embedder) bucket(tok string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dimension)), sign
}
