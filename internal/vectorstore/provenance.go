package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ProvenanceRecord maps one source file to the record ids created from it
// by a single AddDocuments call.
type ProvenanceRecord struct {
	FilePath string   `json:"file_path"`
	IDs      []string `json:"index"`
}

// ProvenanceLog is an append-only JSON Lines file.
type ProvenanceLog struct {
	mu   sync.Mutex
	path string
}

func NewProvenanceLog(path string) *ProvenanceLog {
	return &ProvenanceLog{path: path}
}

func (p *ProvenanceLog) Path() string { return p.path }

// Append writes rec as one line, creating the file and its directory on demand.
func (p *ProvenanceLog) Append(rec ProvenanceRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Records reads every entry in file order. A missing file yields no records.
// Entries may be separated by newlines or simply concatenated.
func (p *ProvenanceLog) Records() ([]ProvenanceRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.Open(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []ProvenanceRecord
	dec := json.NewDecoder(f)
	for {
		var rec ProvenanceRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("provenance entry %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}
