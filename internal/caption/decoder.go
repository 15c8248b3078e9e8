package caption

import (
	"context"
	"fmt"
)

// Fixed leading decoder inputs. Any further declared inputs are past
// key/value tensors in layer order.
const (
	inputIDs             = "input_ids"
	inputAttentionMask   = "attention_mask"
	inputEncoderStates   = "encoder_hidden_states"
	inputEncoderMask     = "encoder_attention_mask"
	fixedDecoderInputLen = 4
)

// DecoderGeometry describes the attention layout of the text decoder.
type DecoderGeometry struct {
	NumLayers int
	NumHeads  int
	HeadDim   int
}

// StepInput is one decoder call. InputIDs is [Batch, len/Batch] and
// AttentionMask covers the cached positions plus the new ones.
type StepInput struct {
	InputIDs      []int64
	AttentionMask []int64
	Batch         int
	Cache         KVCache
	Encoder       ImageEmbeddings
}

// StepOutput carries logits for every input position, [Batch, Seq, Vocab],
// and the cache to pass to the next step.
type StepOutput struct {
	Logits []float32
	Batch  int
	Seq    int
	Vocab  int
	Cache  PopulatedCache
}

// LastLogits returns the logits of the final position of row b.
func (o StepOutput) LastLogits(b int) []float32 {
	start := (b*o.Seq + o.Seq - 1) * o.Vocab
	return o.Logits[start : start+o.Vocab]
}

// TextDecoder adapts a decoder session with optional past inputs.
type TextDecoder struct {
	session    Session
	geometry   DecoderGeometry
	pastInputs []TensorInfo
}

func NewTextDecoder(session Session, geometry DecoderGeometry) *TextDecoder {
	var past []TensorInfo
	if info := session.InputInfo(); len(info) > fixedDecoderInputLen {
		past = info[fixedDecoderInputLen:]
	}
	return &TextDecoder{session: session, geometry: geometry, pastInputs: past}
}

// UsesCache reports whether the session takes past key/value inputs. Without
// them every step must feed the whole sequence.
func (d *TextDecoder) UsesCache() bool { return len(d.pastInputs) > 0 }

// Step runs the decoder once.
func (d *TextDecoder) Step(ctx context.Context, in StepInput) (StepOutput, error) {
	if err := ctx.Err(); err != nil {
		return StepOutput{}, err
	}
	if in.Batch <= 0 || len(in.InputIDs) == 0 || len(in.InputIDs)%in.Batch != 0 {
		return StepOutput{}, fmt.Errorf("invalid decoder input: %d ids for batch %d", len(in.InputIDs), in.Batch)
	}
	if len(in.AttentionMask)%in.Batch != 0 {
		return StepOutput{}, fmt.Errorf("invalid attention mask: %d values for batch %d", len(in.AttentionMask), in.Batch)
	}
	seq := len(in.InputIDs) / in.Batch
	maskLen := len(in.AttentionMask) / in.Batch
	cache := in.Cache
	if cache == nil {
		cache = EmptyCache{}
	}

	encoder, err := broadcastEncoder(in.Encoder, in.Batch)
	if err != nil {
		return StepOutput{}, err
	}
	inputs := []Tensor{
		{Name: inputIDs, Shape: []int64{int64(in.Batch), int64(seq)}, Data: in.InputIDs},
		{Name: inputAttentionMask, Shape: []int64{int64(in.Batch), int64(maskLen)}, Data: in.AttentionMask},
		{Name: inputEncoderStates, Shape: []int64{int64(in.Batch), int64(encoder.Seq), int64(encoder.Hidden)}, Data: encoder.Data},
		{Name: inputEncoderMask, Shape: []int64{int64(in.Batch), int64(encoder.Seq)}, Data: ones(in.Batch * encoder.Seq)},
	}
	past, err := d.pastTensors(cache)
	if err != nil {
		return StepOutput{}, err
	}
	inputs = append(inputs, past...)

	outputs, err := d.session.Run(inputs)
	if err != nil {
		return StepOutput{}, fmt.Errorf("running text decoder: %w", err)
	}
	return d.parseOutputs(outputs, in.Batch, seq)
}

// pastTensors feeds a populated cache verbatim under the declared past
// input names, or zero-length placeholders before the first step.
func (d *TextDecoder) pastTensors(cache KVCache) ([]Tensor, error) {
	if !d.UsesCache() {
		return nil, nil
	}
	switch c := cache.(type) {
	case EmptyCache:
		out := make([]Tensor, len(d.pastInputs))
		for i, info := range d.pastInputs {
			out[i] = Tensor{Name: info.Name, Shape: d.placeholderShape(info), Data: []float32{}}
		}
		return out, nil
	case PopulatedCache:
		if len(c.Tensors) != len(d.pastInputs) {
			return nil, fmt.Errorf("cache has %d tensors, decoder expects %d", len(c.Tensors), len(d.pastInputs))
		}
		out := make([]Tensor, len(c.Tensors))
		for i, t := range c.Tensors {
			out[i] = Tensor{Name: d.pastInputs[i].Name, Shape: t.Shape, Data: t.Data}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown cache type %T", cache)
	}
}

// placeholderShape is [1, heads, 0, headDim], taking heads and headDim from
// the declared input when static and from the configured geometry otherwise.
func (d *TextDecoder) placeholderShape(info TensorInfo) []int64 {
	heads, headDim := int64(d.geometry.NumHeads), int64(d.geometry.HeadDim)
	if len(info.Shape) == 4 {
		if info.Shape[1] > 0 {
			heads = info.Shape[1]
		}
		if info.Shape[3] > 0 {
			headDim = info.Shape[3]
		}
	}
	return []int64{1, heads, 0, headDim}
}

func (d *TextDecoder) parseOutputs(outputs []Tensor, batch, seq int) (StepOutput, error) {
	if len(outputs) == 0 {
		return StepOutput{}, fmt.Errorf("text decoder returned no outputs")
	}
	logits := outputs[0]
	if len(logits.Shape) != 3 || int(logits.Shape[0]) != batch || int(logits.Shape[1]) != seq {
		return StepOutput{}, fmt.Errorf("unexpected logits shape %v for input [%d %d]", logits.Shape, batch, seq)
	}
	data, err := float32Data(logits)
	if err != nil {
		return StepOutput{}, err
	}
	out := StepOutput{Logits: data, Batch: batch, Seq: seq, Vocab: int(logits.Shape[2])}
	if !d.UsesCache() {
		return out, nil
	}

	present := outputs[1:]
	if want := 2 * d.geometry.NumLayers; want > 0 && len(present) != want {
		return StepOutput{}, fmt.Errorf("text decoder returned %d cache tensors, want %d", len(present), want)
	}
	out.Cache, err = newPopulatedCache(present)
	if err != nil {
		return StepOutput{}, err
	}
	return out, nil
}

func (d *TextDecoder) Close() error { return d.session.Close() }

// broadcastEncoder repeats a single image's embeddings across the batch.
func broadcastEncoder(e ImageEmbeddings, batch int) (ImageEmbeddings, error) {
	if e.N == batch {
		return e, nil
	}
	if e.N != 1 {
		return ImageEmbeddings{}, fmt.Errorf("encoder batch %d does not match decoder batch %d", e.N, batch)
	}
	data := make([]float32, 0, len(e.Data)*batch)
	for i := 0; i < batch; i++ {
		data = append(data, e.Data...)
	}
	return ImageEmbeddings{Data: data, N: batch, Seq: e.Seq, Hidden: e.Hidden}, nil
}
