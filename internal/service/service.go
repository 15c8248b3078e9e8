// Package service ties loading, indexing and question answering together
// behind one object shared by the CLI, TUI and HTTP server.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"docseek/internal/domain"
	"docseek/internal/metrics"
	"docseek/internal/query"
	"docseek/internal/summarizer"
	"docseek/internal/textstore"
	"docseek/internal/vectorstore"
)

// ErrFullTextDisabled is returned by FullText when no text store is configured.
var ErrFullTextDisabled = errors.New("full-text store is disabled")

// FileLoader is the part of loader.Registry the service needs.
type FileLoader interface {
	Supports(path string) bool
	Load(ctx context.Context, path string) ([]domain.Document, error)
}

type Options struct {
	Store     *vectorstore.Store
	Loader    FileLoader
	TextStore *textstore.Store
	Query     *query.Pipeline
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// DocumentService serializes ingestion with a write lock; questions and
// searches share a read lock.
type DocumentService struct {
	mu        sync.RWMutex
	store     *vectorstore.Store
	loader    FileLoader
	textStore *textstore.Store
	query     *query.Pipeline
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func New(opts Options) *DocumentService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		store:     opts.Store,
		loader:    opts.Loader,
		textStore: opts.TextStore,
		query:     opts.Query,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

type FileStatus string

const (
	StatusIndexed     FileStatus = "indexed"
	StatusEmpty       FileStatus = "empty"
	StatusUnsupported FileStatus = "unsupported"
	StatusFailed      FileStatus = "failed"
)

type FileResult struct {
	Path   string     `json:"path"`
	Status FileStatus `json:"status"`
	Chunks int        `json:"chunks"`
	Error  string     `json:"error,omitempty"`
}

type IngestReport struct {
	Files   []FileResult  `json:"files"`
	Indexed int           `json:"indexed"`
	Chunks  int           `json:"chunks"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Elapsed time.Duration `json:"elapsed"`
}

// Ingest expands patterns, loads each file and adds it to the vector store,
// saving after every file. Files that cannot be read or parsed are reported
// and skipped; store failures abort the run.
func (s *DocumentService) Ingest(ctx context.Context, patterns []string) (*IngestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	paths, err := s.expand(patterns)
	if err != nil {
		return nil, err
	}
	report := &IngestReport{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := s.ingestFile(ctx, path)
		if err != nil {
			return report, err
		}
		report.Files = append(report.Files, res)
		switch res.Status {
		case StatusIndexed:
			report.Indexed++
			report.Chunks += res.Chunks
		case StatusFailed:
			report.Failed++
		default:
			report.Skipped++
		}
		if s.metrics != nil {
			s.metrics.FilesIngested.WithLabelValues(string(res.Status)).Inc()
		}
	}
	if s.textStore != nil && report.Indexed > 0 {
		if err := s.textStore.Commit(ctx); err != nil {
			return report, fmt.Errorf("committing full-text store: %w", err)
		}
	}
	if s.metrics != nil {
		if n, err := s.store.Len(ctx); err == nil {
			s.metrics.StoredChunks.Set(float64(n))
		}
	}
	report.Elapsed = time.Since(start)
	s.logger.Info("ingestion finished",
		zap.Int("files", len(report.Files)),
		zap.Int("indexed", report.Indexed),
		zap.Int("chunks", report.Chunks),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

func (s *DocumentService) ingestFile(ctx context.Context, path string) (FileResult, error) {
	res := FileResult{Path: path}
	if !s.loader.Supports(path) {
		res.Status = StatusUnsupported
		return res, nil
	}
	start := time.Now()
	docs, err := s.loader.Load(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		s.logger.Warn("failed to load file", zap.String("path", path), zap.Error(err))
		res.Status, res.Error = StatusFailed, err.Error()
		return res, nil
	}
	docs = nonEmpty(docs)
	if len(docs) == 0 {
		res.Status = StatusEmpty
		return res, nil
	}

	ids, err := s.store.AddDocuments(ctx, docs, path)
	if err != nil {
		return res, fmt.Errorf("indexing %s: %w", path, err)
	}
	if err := s.store.Save(); err != nil {
		return res, err
	}
	if s.textStore != nil {
		s.textStore.WriteDocument(path, joinContent(docs))
	}
	if s.metrics != nil {
		s.metrics.ChunksIngested.Add(float64(len(ids)))
		s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}
	s.logger.Debug("indexed file", zap.String("path", path), zap.Int("documents", len(docs)), zap.Int("chunks", len(ids)))
	res.Status, res.Chunks = StatusIndexed, len(ids)
	return res, nil
}

// expand resolves globs, walks directories for supported files and drops
// duplicates. A pattern with no glob match is taken literally.
func (s *DocumentService) expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if matches == nil {
			matches = []string{pattern}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				add(m)
				continue
			}
			var found []string
			err = filepath.WalkDir(m, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && s.loader.Supports(p) {
					found = append(found, p)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walking %s: %w", m, err)
			}
			sort.Strings(found)
			for _, p := range found {
				add(p)
			}
		}
	}
	return out, nil
}

// Ask answers question, retrieving with paraphrases when multi is set. A
// non-nil fn receives the answer text as it is generated.
func (s *DocumentService) Ask(ctx context.Context, question string, multi bool, fn func(string) error) (*query.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case multi && fn != nil:
		return s.query.MultiQueryStream(ctx, question, fn)
	case multi:
		return s.query.MultiQuery(ctx, question)
	case fn != nil:
		return s.query.AskStream(ctx, question, fn)
	default:
		return s.query.Ask(ctx, question)
	}
}

// Retrieve returns the k nearest records. When none of them is similar to
// the query they are re-ranked by word overlap instead.
func (s *DocumentService) Retrieve(ctx context.Context, q string, k int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, err := s.store.SimilaritySearch(ctx, q, k)
	if err != nil {
		return nil, err
	}
	return lexicalFallback(q, res), nil
}

// FullText runs a BM25 keyword search over whole files.
func (s *DocumentService) FullText(ctx context.Context, q string) ([]textstore.Hit, error) {
	if s.textStore == nil {
		return nil, ErrFullTextDisabled
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.textStore.Search(ctx, q)
}

// History returns the provenance log, one record per indexed file.
func (s *DocumentService) History() ([]vectorstore.ProvenanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Provenance().Records()
}

// Len reports the number of records in the vector store.
func (s *DocumentService) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Len(ctx)
}

func nonEmpty(docs []domain.Document) []domain.Document {
	out := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	return out
}

func joinContent(docs []domain.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n\n")
}

// lexicalFallback re-ranks results by Ochiai word overlap when the vector
// search found nothing similar at all.
func lexicalFallback(q string, res []domain.SearchResult) []domain.SearchResult {
	for _, r := range res {
		if r.Score > 1e-9 {
			return res
		}
	}
	qset := summarizer.TokenSet(q)
	scores := make(map[string]float64, len(res))
	out := append([]domain.SearchResult(nil), res...)
	for _, r := range out {
		scores[r.Document.ID] = summarizer.Ochiai(qset, r.Document.Content)
	}
	sort.SliceStable(out, func(a, b int) bool { return scores[out[a].Document.ID] > scores[out[b].Document.ID] })
	for i := range out {
		out[i].Score = scores[out[i].Document.ID]
	}
	return out
}
