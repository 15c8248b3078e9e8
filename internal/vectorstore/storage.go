package vectorstore

import (
	"context"
	"path/filepath"

	"docseek/internal/domain"
)

// Layout is the fixed on-disk arrangement of a vector store rooted at Root:
//
//	<root>/index.faiss                       vectors
//	<root>/index.db                          document records
//	<root>/faiss_file_index/index.json       provenance log
type Layout struct {
	Root string
}

func (l Layout) IndexFile() string      { return filepath.Join(l.Root, "index.faiss") }
func (l Layout) DocstoreFile() string   { return filepath.Join(l.Root, "index.db") }
func (l Layout) ProvenanceDir() string  { return filepath.Join(l.Root, "faiss_file_index") }
func (l Layout) ProvenanceFile() string { return filepath.Join(l.ProvenanceDir(), "index.json") }

// Entry is one record handed to a backend.
type Entry struct {
	ID       string
	Vector   []float32
	Document domain.Document
}

// Hit is a nearest-neighbour match. Distance is the squared L2 distance
// between unit vectors; Score is the matching cosine similarity.
type Hit struct {
	ID       string
	Distance float64
	Score    float64
	Document domain.Document
}

// Backend persists vectors with their records and answers similarity queries.
type Backend interface {
	// Open loads persisted state from layout or starts empty. It reports
	// whether existing state was loaded.
	Open(ctx context.Context, layout Layout, dimension int) (loaded bool, err error)
	Add(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	// Persist writes the current state, overwriting what was there.
	Persist(layout Layout) error
	Len(ctx context.Context) (int, error)
	Close() error
}
