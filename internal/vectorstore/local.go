package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"docseek/internal/domain"
	"docseek/internal/vectorstore/docstore"
	"docseek/internal/vectorstore/flat"
)

// Local keeps vectors in a flat index file and records in a bbolt docstore.
// Added records stay in memory until Persist.
type Local struct {
	mu      sync.Mutex
	index   *flat.Index
	records *docstore.Bolt
	pending map[string]domain.Document
}

func NewLocal() *Local {
	return &Local{pending: make(map[string]domain.Document)}
}

func (l *Local) Open(_ context.Context, layout Layout, dimension int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loaded := false
	ix, err := flat.ReadFile(layout.IndexFile())
	switch {
	case err == nil:
		loaded = true
	case errors.Is(err, fs.ErrNotExist):
		ix, err = flat.New(dimension)
		if err != nil {
			return false, err
		}
	default:
		return false, err
	}
	if ix.Dimension() != dimension {
		return false, fmt.Errorf("index dimension %d does not match embedder dimension %d", ix.Dimension(), dimension)
	}

	records, err := docstore.Open(layout.DocstoreFile())
	if err != nil {
		return false, err
	}
	if l.records != nil {
		l.records.Close()
	}
	l.index = ix
	l.records = records
	return loaded, nil
}

func (l *Local) Add(_ context.Context, entries []Entry) error {
	ids := make([]string, len(entries))
	vecs := make([][]float32, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		vecs[i] = e.Vector
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.index.Add(ids, vecs); err != nil {
		return err
	}
	for _, e := range entries {
		doc := e.Document
		doc.ID = e.ID
		l.pending[e.ID] = doc
	}
	return nil
}

func (l *Local) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	matches, err := l.index.Search(vector, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		doc, ok := l.pending[m.ID]
		if !ok {
			doc, err = l.records.Get(m.ID)
			if err != nil {
				return nil, err
			}
		}
		d := float64(m.Distance)
		hits = append(hits, Hit{ID: m.ID, Distance: d, Score: 1 - d/2, Document: doc})
	}
	return hits, nil
}

// Persist writes pending records, then rewrites the whole index file.
func (l *Local) Persist(layout Layout) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) > 0 {
		docs := make([]domain.Document, 0, len(l.pending))
		for _, d := range l.pending {
			docs = append(docs, d)
		}
		if err := l.records.Put(docs); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
	}
	if err := l.index.WriteFile(layout.IndexFile()); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	clear(l.pending)
	return nil
}

func (l *Local) Len(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Len(), nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.records == nil {
		return nil
	}
	err := l.records.Close()
	l.records = nil
	return err
}

var _ Backend = (*Local)(nil)
