// Package flat is an exact, brute-force L2 vector index that persists to a
// single binary file.
package flat

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

var magic = [8]byte{'D', 'S', 'K', 'F', 'L', 'A', 'T', '1'}

// ErrDimension is returned when a vector does not match the index dimension.
var ErrDimension = errors.New("vector dimension mismatch")

// Match is one search hit. Distance is the squared L2 distance.
type Match struct {
	ID       string
	Distance float32
}

// Index holds vectors in insertion order.
type Index struct {
	mu        sync.RWMutex
	dimension int
	ids       []string
	vectors   [][]float32
}

func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	return &Index{dimension: dimension}, nil
}

func (ix *Index) Dimension() int { return ix.dimension }

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

// Add appends vectors under the given ids. All vectors are validated before
// any is stored.
func (ix *Index) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return errors.New("ids and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != ix.dimension {
			return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(v), ix.dimension)
		}
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range ids {
		v := make([]float32, len(vectors[i]))
		copy(v, vectors[i])
		ix.ids = append(ix.ids, ids[i])
		ix.vectors = append(ix.vectors, v)
	}
	return nil
}

// Search returns up to k nearest vectors by ascending distance. Ties keep
// insertion order.
func (ix *Index) Search(query []float32, k int) ([]Match, error) {
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(query), ix.dimension)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if k <= 0 || len(ix.ids) == 0 {
		return nil, nil
	}

	dists := make([]float32, len(ix.vectors))
	for i, v := range ix.vectors {
		dists[i] = squaredL2(v, query)
	}
	order := argsortAsc(dists)
	if k > len(order) {
		k = len(order)
	}
	out := make([]Match, k)
	for i := 0; i < k; i++ {
		j := order[i]
		out[i] = Match{ID: ix.ids[j], Distance: dists[j]}
	}
	return out, nil
}

// WriteFile writes the whole index to path, replacing any existing file.
//
// Layout (little-endian): magic[8] dim:u32 count:u64, then per entry
// idLen:u16 id[idLen] vector[dim]float32.
func (ix *Index) WriteFile(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := ix.encode(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (ix *Index) encode(w io.Writer) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ix.dimension)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(ix.ids))); err != nil {
		return err
	}
	for i, id := range ix.ids {
		if len(id) > math.MaxUint16 {
			return fmt.Errorf("id too long: %d bytes", len(id))
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(id))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, ix.vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReadFile loads an index written by WriteFile.
func ReadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ix, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ix, nil
}

func decode(r io.Reader) (*Index, error) {
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	if head != magic {
		return nil, errors.New("not a flat index file")
	}
	var dim uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	ix, err := New(int(dim))
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		id := make([]byte, n)
		if _, err := io.ReadFull(r, id); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		ix.ids = append(ix.ids, string(id))
		ix.vectors = append(ix.vectors, vec)
	}
	return ix, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func argsortAsc(vals []float32) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] < vals[idxs[b]] })
	return idxs
}
