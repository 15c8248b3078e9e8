package caption

import (
	"context"
	"errors"
	"image"
	"sync"

	"go.uber.org/zap"
)

// Config locates the model files and describes their geometry.
type Config struct {
	EncoderPath string
	DecoderPath string
	VocabPath   string
	Hidden      int
	Geometry    DecoderGeometry
	Image       ImageConfig
	Generation  GenerationConfig
	Threads     int
}

// Pipeline captions image files end to end. Calls are serialized because
// sessions are not safe for concurrent use.
type Pipeline struct {
	mu        sync.Mutex
	captioner *Captioner
	vocab     *Vocabulary
	image     ImageConfig
	closers   []func() error
}

func NewPipeline(captioner *Captioner, vocab *Vocabulary, img ImageConfig) *Pipeline {
	if img.Size == 0 {
		img = DefaultImageConfig()
	}
	return &Pipeline{captioner: captioner, vocab: vocab, image: img}
}

// newPipelineFromSessions assembles a pipeline that owns both sessions.
func newPipelineFromSessions(cfg Config, enc, dec Session, vocab *Vocabulary, logger *zap.Logger) *Pipeline {
	captioner := NewCaptioner(NewVisionEncoder(enc, cfg.Hidden), NewTextDecoder(dec, cfg.Geometry), cfg.Generation, logger)
	p := NewPipeline(captioner, vocab, cfg.Image)
	p.closers = []func() error{enc.Close, dec.Close}
	return p
}

func (p *Pipeline) CaptionImage(ctx context.Context, img image.Image) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seqs, err := p.captioner.Generate(ctx, Preprocess(p.image, img), nil)
	if err != nil {
		return "", err
	}
	return p.vocab.Decode(seqs[0]), nil
}

func (p *Pipeline) CaptionFile(ctx context.Context, path string) (string, error) {
	img, err := LoadImage(path)
	if err != nil {
		return "", err
	}
	return p.CaptionImage(ctx, img)
}

func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	p.closers = nil
	return errors.Join(errs...)
}
