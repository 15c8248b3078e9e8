// Package textstore is a keyword index over whole extracted documents,
// backed by an SQLite FTS5 table and ranked with BM25.
package textstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	_ "modernc.org/sqlite"
)

const defaultLimit = 10

// Hit is one ranked match. Higher Score is better.
type Hit struct {
	Score    float64 `json:"score"`
	FilePath string  `json:"filepath"`
	Snippet  string  `json:"snippet"`
}

type pendingDoc struct {
	path, body string
}

// Store buffers writes until Commit.
type Store struct {
	db      *sql.DB
	mu      sync.Mutex
	pending []pendingDoc
}

// Open opens or creates the index database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("text store path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(filepath UNINDEXED, body)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create fts table: %w", err)
	}
	return &Store{db: db}, nil
}

// WriteDocument queues the full text of one file.
func (s *Store) WriteDocument(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pendingDoc{path: path, body: body})
}

// Commit writes queued documents in one transaction. A file written again
// replaces its previous entry.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, d := range s.pending {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE filepath = ?`, d.path); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents(filepath, body) VALUES(?, ?)`, d.path, d.body); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

// Search returns the top ten committed documents matching any query term.
func (s *Store) Search(ctx context.Context, query string) ([]Hit, error) {
	match := matchExpr(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT filepath, bm25(documents) AS score, snippet(documents, 1, '[', ']', ' … ', 12)
		FROM documents
		WHERE documents MATCH ?
		ORDER BY score ASC
		LIMIT ?`, match, defaultLimit)
	if err != nil {
		return nil, fmt.Errorf("full text search: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		var bm25 float64
		if err := rows.Scan(&h.FilePath, &bm25, &h.Snippet); err != nil {
			return nil, err
		}
		// bm25() is negative with lower meaning more relevant
		h.Score = -bm25
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

// matchExpr turns free text into an FTS5 OR query of quoted terms so user
// input never reaches the FTS5 query grammar.
func matchExpr(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}
