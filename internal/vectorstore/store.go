// Package vectorstore indexes chunked documents by embedding and answers
// nearest-neighbour queries. A Store owns a fixed directory layout and
// delegates vector storage to a Backend.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docseek/internal/domain"
)

// ErrNotLoaded is returned by every operation that runs before LoadOrCreate.
var ErrNotLoaded = errors.New("vector store is not loaded or created yet")

type Options struct {
	Layout   Layout
	Embedder domain.Embedder
	Splitter domain.Splitter
	Backend  Backend
	Logger   *zap.Logger
}

// Store is not safe for concurrent AddDocuments/Save; callers serialize
// writes. Searches may run concurrently with each other.
type Store struct {
	layout     Layout
	embedder   domain.Embedder
	splitter   domain.Splitter
	backend    Backend
	provenance *ProvenanceLog
	logger     *zap.Logger
	newID      func() string
	loaded     bool
}

func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := opts.Backend
	if backend == nil {
		backend = NewLocal()
	}
	return &Store{
		layout:     opts.Layout,
		embedder:   opts.Embedder,
		splitter:   opts.Splitter,
		backend:    backend,
		provenance: NewProvenanceLog(opts.Layout.ProvenanceFile()),
		logger:     logger,
		newID:      uuid.NewString,
	}
}

func (s *Store) Layout() Layout             { return s.layout }
func (s *Store) Provenance() *ProvenanceLog { return s.provenance }
func (s *Store) Embedder() domain.Embedder  { return s.embedder }

// LoadOrCreate opens persisted state or starts an empty index sized to the
// embedder. Remote embedders with an unknown dimension are probed once.
func (s *Store) LoadOrCreate(ctx context.Context) error {
	dim := s.embedder.Dimension()
	if dim <= 0 {
		v, err := s.embedder.EmbedQuery(ctx, "test")
		if err != nil {
			return fmt.Errorf("loading or creating vector store: probe embedding dimension: %w", err)
		}
		dim = len(v)
	}
	loaded, err := s.backend.Open(ctx, s.layout, dim)
	if err != nil {
		return fmt.Errorf("loading or creating vector store: %w", err)
	}
	s.loaded = true

	n, _ := s.backend.Len(ctx)
	if loaded {
		s.logger.Info("vector store loaded", zap.String("root", s.layout.Root), zap.Int("records", n), zap.Int("dimension", dim))
	} else {
		s.logger.Info("vector store created", zap.String("root", s.layout.Root), zap.Int("dimension", dim))
	}
	return nil
}

// AddDocuments splits docs into chunks, embeds and indexes them under fresh
// ids, and logs one provenance entry for sourcePath. It returns the new ids.
func (s *Store) AddDocuments(ctx context.Context, docs []domain.Document, sourcePath string) ([]string, error) {
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	chunks := docs
	if s.splitter != nil {
		chunks = s.splitter.SplitDocuments(docs)
	}
	if len(chunks) == 0 {
		if err := s.provenance.Append(ProvenanceRecord{FilePath: sourcePath, IDs: []string{}}); err != nil {
			return nil, fmt.Errorf("record provenance of %s: %w", sourcePath, err)
		}
		return []string{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks of %s: %w", sourcePath, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks of %s: got %d vectors for %d chunks", sourcePath, len(vectors), len(chunks))
	}

	ids := make([]string, len(chunks))
	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		ids[i] = s.newID()
		c.ID = ids[i]
		entries[i] = Entry{ID: ids[i], Vector: vectors[i], Document: c}
	}
	if err := s.backend.Add(ctx, entries); err != nil {
		return nil, fmt.Errorf("add chunks of %s: %w", sourcePath, err)
	}
	if err := s.provenance.Append(ProvenanceRecord{FilePath: sourcePath, IDs: ids}); err != nil {
		return ids, fmt.Errorf("record provenance of %s: %w", sourcePath, err)
	}
	s.logger.Debug("documents indexed", zap.String("source", sourcePath), zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)))
	return ids, nil
}

// Save persists the backend, overwriting the index file.
func (s *Store) Save() error {
	if !s.loaded {
		return ErrNotLoaded
	}
	if err := s.backend.Persist(s.layout); err != nil {
		return fmt.Errorf("save vector store: %w", err)
	}
	return nil
}

// SimilaritySearch embeds query and returns the k nearest records.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.SimilaritySearchByVector(ctx, vec, k)
}

func (s *Store) SimilaritySearchByVector(ctx context.Context, vec []float32, k int) ([]domain.SearchResult, error) {
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	hits, err := s.backend.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}
	out := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		doc := h.Document
		doc.ID = h.ID
		out[i] = domain.SearchResult{Document: doc, Score: h.Score, Distance: h.Distance}
	}
	return out, nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	if !s.loaded {
		return 0, ErrNotLoaded
	}
	return s.backend.Len(ctx)
}

func (s *Store) Close() error {
	s.loaded = false
	return s.backend.Close()
}
