package caption

import "fmt"

// KVCache is the decoder's past key/value state: either EmptyCache before
// the first step or a PopulatedCache returned by the previous step.
type KVCache interface {
	SeqLen() int
	isKVCache()
}

type EmptyCache struct{}

func (EmptyCache) SeqLen() int { return 0 }
func (EmptyCache) isKVCache()  {}

// PopulatedCache holds key and value tensors for every layer, in layer order,
// each shaped [batch, heads, seq, headDim].
type PopulatedCache struct {
	Tensors []Tensor
	seqLen  int
}

func (c PopulatedCache) SeqLen() int { return c.seqLen }
func (PopulatedCache) isKVCache()    {}

func newPopulatedCache(tensors []Tensor) (PopulatedCache, error) {
	if len(tensors) == 0 {
		return PopulatedCache{}, fmt.Errorf("decoder returned no cache tensors")
	}
	seq := -1
	for _, t := range tensors {
		if len(t.Shape) != 4 {
			return PopulatedCache{}, fmt.Errorf("cache tensor %q: want 4 dims, got shape %v", t.Name, t.Shape)
		}
		if _, err := float32Data(t); err != nil {
			return PopulatedCache{}, err
		}
		if seq >= 0 && int(t.Shape[2]) != seq {
			return PopulatedCache{}, fmt.Errorf("cache tensor %q: sequence length %d, others have %d", t.Name, t.Shape[2], seq)
		}
		seq = int(t.Shape[2])
	}
	return PopulatedCache{Tensors: tensors, seqLen: seq}, nil
}

// Select gathers batch rows by index, in the given order. Beam search uses
// it to follow each surviving beam's parent.
func (c PopulatedCache) Select(rows []int) (PopulatedCache, error) {
	out := make([]Tensor, len(c.Tensors))
	for i, t := range c.Tensors {
		data, err := float32Data(t)
		if err != nil {
			return PopulatedCache{}, err
		}
		batch := int(t.Shape[0])
		stride := len(data) / max(batch, 1)
		gathered := make([]float32, 0, stride*len(rows))
		for _, r := range rows {
			if r < 0 || r >= batch {
				return PopulatedCache{}, fmt.Errorf("cache row %d out of range [0,%d)", r, batch)
			}
			gathered = append(gathered, data[r*stride:(r+1)*stride]...)
		}
		shape := append([]int64{int64(len(rows))}, t.Shape[1:]...)
		out[i] = Tensor{Name: t.Name, Shape: shape, Data: gathered}
	}
	return PopulatedCache{Tensors: out, seqLen: c.seqLen}, nil
}
