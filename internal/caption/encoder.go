package caption

import (
	"context"
	"fmt"
)

// PixelBatch is N normalized images laid out as [N, C, H, W].
type PixelBatch struct {
	Data     []float32
	N        int
	Channels int
	Height   int
	Width    int
}

func (b PixelBatch) shape() []int64 {
	return []int64{int64(b.N), int64(b.Channels), int64(b.Height), int64(b.Width)}
}

// ImageEmbeddings are the encoder hidden states, laid out as [N, Seq, Hidden].
type ImageEmbeddings struct {
	Data   []float32
	N      int
	Seq    int
	Hidden int
}

// At returns the embeddings of image i as a batch of one.
func (e ImageEmbeddings) At(i int) ImageEmbeddings {
	size := e.Seq * e.Hidden
	return ImageEmbeddings{Data: e.Data[i*size : (i+1)*size], N: 1, Seq: e.Seq, Hidden: e.Hidden}
}

// VisionEncoder maps pixel batches to image embeddings.
type VisionEncoder struct {
	session Session
	hidden  int
}

// NewVisionEncoder wraps session. A positive hidden enforces the embedding
// width of every result.
func NewVisionEncoder(session Session, hidden int) *VisionEncoder {
	return &VisionEncoder{session: session, hidden: hidden}
}

// Encode runs the encoder once for the whole batch and returns exactly one
// embedding per image.
func (e *VisionEncoder) Encode(ctx context.Context, batch PixelBatch) (ImageEmbeddings, error) {
	if err := ctx.Err(); err != nil {
		return ImageEmbeddings{}, err
	}
	if batch.N <= 0 {
		return ImageEmbeddings{}, fmt.Errorf("empty pixel batch")
	}
	if len(batch.Data) != numElements(batch.shape()) {
		return ImageEmbeddings{}, fmt.Errorf("pixel batch has %d values for shape %v", len(batch.Data), batch.shape())
	}

	name := "pixel_values"
	if info := e.session.InputInfo(); len(info) > 0 {
		name = info[0].Name
	}
	outputs, err := e.session.Run([]Tensor{{Name: name, Shape: batch.shape(), Data: batch.Data}})
	if err != nil {
		return ImageEmbeddings{}, fmt.Errorf("running vision encoder: %w", err)
	}
	if len(outputs) == 0 {
		return ImageEmbeddings{}, fmt.Errorf("vision encoder returned no outputs")
	}

	out := outputs[0]
	if len(out.Shape) != 3 {
		return ImageEmbeddings{}, fmt.Errorf("unexpected vision encoder output shape %v", out.Shape)
	}
	data, err := float32Data(out)
	if err != nil {
		return ImageEmbeddings{}, err
	}
	emb := ImageEmbeddings{Data: data, N: int(out.Shape[0]), Seq: int(out.Shape[1]), Hidden: int(out.Shape[2])}
	if emb.N != batch.N {
		return ImageEmbeddings{}, fmt.Errorf("vision encoder returned %d embeddings for %d images", emb.N, batch.N)
	}
	if e.hidden > 0 && emb.Hidden != e.hidden {
		return ImageEmbeddings{}, fmt.Errorf("vision encoder hidden size %d, want %d", emb.Hidden, e.hidden)
	}
	return emb, nil
}

func (e *VisionEncoder) Close() error { return e.session.Close() }
