package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// Embedder embeds text through an Ollama server's /api/embed endpoint.
type Embedder struct {
	client    *api.Client
	model     string
	dimension int
}

// Config configures the Ollama embedder.
type Config struct {
	Host      string
	Model     string
	Timeout   time.Duration
	Dimension int
}

// NewEmbedder creates an embedder for the given host, e.g. http://localhost:11434.
func NewEmbedder(cfg Config) (*Embedder, error) {
	u, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Host, err)
	}
	if cfg.Model == "" {
		cfg.Model = "bge-m3"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Embedder{
		client:    api.NewClient(u, &http.Client{Timeout: timeout}),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "ollama" }

// Dimension returns the embedding size, learned from the first response if not configured.
func (e *Embedder) Dimension() int { return e.dimension }

// Probe embeds a short string to learn the vector dimension.
func (e *Embedder) Probe(ctx context.Context) (int, error) {
	if e.dimension > 0 {
		return e.dimension, nil
	}
	if _, err := e.EmbedQuery(ctx, "test"); err != nil {
		return 0, err
	}
	return e.dimension, nil
}

// EmbedDocuments embeds all texts in one request.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	for _, v := range resp.Embeddings {
		if e.dimension == 0 {
			e.dimension = len(v)
		}
		if len(v) != e.dimension {
			return nil, fmt.Errorf("ollama embed: dimension %d, want %d", len(v), e.dimension)
		}
	}
	return resp.Embeddings, nil
}

// EmbedQuery embeds a single text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
