package caption

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// State is the phase of one generation request.
type State int

const (
	StateInit State = iota
	StateDecoding
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDecoding:
		return "decoding"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// GenerationConfig controls decoding. MaxLength counts every token in the
// sequence including the start token.
type GenerationConfig struct {
	MaxLength     int
	NumBeams      int
	LengthPenalty float64
	BOSTokenID    int64
	EOSTokenID    int64
	PadTokenID    int64
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxLength:     20,
		NumBeams:      1,
		LengthPenalty: 1.0,
		BOSTokenID:    30522,
		EOSTokenID:    102,
		PadTokenID:    0,
	}
}

// Captioner runs the encode-then-decode loop.
type Captioner struct {
	encoder *VisionEncoder
	decoder *TextDecoder
	cfg     GenerationConfig
	logger  *zap.Logger
}

func NewCaptioner(encoder *VisionEncoder, decoder *TextDecoder, cfg GenerationConfig, logger *zap.Logger) *Captioner {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 20
	}
	if cfg.NumBeams <= 0 {
		cfg.NumBeams = 1
	}
	if cfg.LengthPenalty == 0 {
		cfg.LengthPenalty = 1.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Captioner{encoder: encoder, decoder: decoder, cfg: cfg, logger: logger}
}

// Generate encodes the batch once and decodes one token sequence per image.
// An optional seed continues from given tokens; its first token is replaced
// by BOS and its last token is dropped, so with no seed decoding starts from
// BOS alone. Sequences are right-padded with PAD to a common length. Any
// failure aborts the whole request.
func (c *Captioner) Generate(ctx context.Context, pixels PixelBatch, seed []int64) ([][]int64, error) {
	c.transition(StateInit)
	emb, err := c.encoder.Encode(ctx, pixels)
	if err != nil {
		return nil, err
	}
	start := c.startTokens(seed)

	c.transition(StateDecoding)
	out := make([][]int64, emb.N)
	longest := 0
	for i := 0; i < emb.N; i++ {
		var seq []int64
		if c.cfg.NumBeams > 1 {
			seq, err = c.beamSearch(ctx, emb.At(i), start)
		} else {
			seq, err = c.greedy(ctx, emb.At(i), start)
		}
		if err != nil {
			return nil, err
		}
		out[i] = seq
		longest = max(longest, len(seq))
	}
	for i := range out {
		for len(out[i]) < longest {
			out[i] = append(out[i], c.cfg.PadTokenID)
		}
	}
	c.transition(StateDone)
	return out, nil
}

func (c *Captioner) transition(s State) {
	c.logger.Debug("caption state", zap.Stringer("state", s))
}

func (c *Captioner) startTokens(seed []int64) []int64 {
	tokens := []int64{c.cfg.BOSTokenID, c.cfg.EOSTokenID}
	if len(seed) > 0 {
		tokens = append([]int64(nil), seed...)
	}
	tokens[0] = c.cfg.BOSTokenID
	if len(tokens) > 1 {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// stepInput feeds only the newest token once a cache exists.
func (c *Captioner) stepInput(seqs [][]int64, cache KVCache, emb ImageEmbeddings) StepInput {
	in := StepInput{Batch: len(seqs), Cache: cache, Encoder: emb}
	for _, s := range seqs {
		if _, populated := cache.(PopulatedCache); populated && c.decoder.UsesCache() {
			in.InputIDs = append(in.InputIDs, s[len(s)-1])
		} else {
			in.InputIDs = append(in.InputIDs, s...)
		}
		in.AttentionMask = append(in.AttentionMask, ones(len(s))...)
	}
	return in
}

func (c *Captioner) greedy(ctx context.Context, emb ImageEmbeddings, start []int64) ([]int64, error) {
	seq := append([]int64(nil), start...)
	var cache KVCache = EmptyCache{}
	for len(seq) < c.cfg.MaxLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := c.decoder.Step(ctx, c.stepInput([][]int64{seq}, cache, emb))
		if err != nil {
			return nil, err
		}
		cache = out.Cache
		next := int64(argmax(out.LastLogits(0)))
		seq = append(seq, next)
		if next == c.cfg.EOSTokenID {
			break
		}
	}
	return seq, nil
}

type hypothesis struct {
	tokens []int64
	score  float64
}

type candidate struct {
	parent int
	token  int64
	score  float64
}

// beamSearch keeps NumBeams running sequences. The first step runs on a
// single row; its cache is then fanned out to every beam.
func (c *Captioner) beamSearch(ctx context.Context, emb ImageEmbeddings, start []int64) ([]int64, error) {
	k := c.cfg.NumBeams
	beams := []hypothesis{{tokens: append([]int64(nil), start...)}}
	var cache KVCache = EmptyCache{}
	var finished []hypothesis

	normalize := func(h hypothesis) float64 {
		return h.score / math.Pow(float64(len(h.tokens)), c.cfg.LengthPenalty)
	}
	addFinished := func(h hypothesis) {
		finished = append(finished, h)
		sort.SliceStable(finished, func(a, b int) bool { return normalize(finished[a]) > normalize(finished[b]) })
		if len(finished) > k {
			finished = finished[:k]
		}
	}

	for len(beams[0].tokens) < c.cfg.MaxLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seqs := make([][]int64, len(beams))
		for i, b := range beams {
			seqs[i] = b.tokens
		}
		out, err := c.decoder.Step(ctx, c.stepInput(seqs, cache, emb))
		if err != nil {
			return nil, err
		}

		var cands []candidate
		for i, b := range beams {
			logp := logSoftmax(out.LastLogits(i))
			for _, tok := range topK(logp, 2*k) {
				cands = append(cands, candidate{parent: i, token: int64(tok), score: b.score + logp[tok]})
			}
		}
		sort.SliceStable(cands, func(a, b int) bool { return cands[a].score > cands[b].score })

		var next []hypothesis
		var parents []int
		for rank, cand := range cands {
			tokens := append(append([]int64(nil), beams[cand.parent].tokens...), cand.token)
			if cand.token == c.cfg.EOSTokenID {
				if rank < k {
					addFinished(hypothesis{tokens: tokens, score: cand.score})
				}
				continue
			}
			next = append(next, hypothesis{tokens: tokens, score: cand.score})
			parents = append(parents, cand.parent)
			if len(next) == k {
				break
			}
		}
		if len(next) == 0 {
			break
		}

		if c.decoder.UsesCache() {
			cache, err = out.Cache.Select(parents)
			if err != nil {
				return nil, err
			}
		}
		beams = next

		if len(finished) == k && normalize(beams[0]) <= normalize(finished[len(finished)-1]) {
			break
		}
	}

	for _, b := range beams {
		addFinished(b)
	}
	return finished[0].tokens, nil
}

func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func logSoftmax(logits []float32) []float64 {
	maxv := math.Inf(-1)
	for _, v := range logits {
		maxv = math.Max(maxv, float64(v))
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - maxv)
	}
	lse := maxv + math.Log(sum)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = float64(v) - lse
	}
	return out
}

// topK returns the indices of the n largest values, largest first.
func topK(v []float64, n int) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] > v[idx[b]] })
	if n < len(idx) {
		idx = idx[:n]
	}
	return idx
}
