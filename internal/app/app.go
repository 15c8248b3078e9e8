// Package app assembles docseek's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docseek/internal/caption"
	"docseek/internal/chunker"
	"docseek/internal/config"
	"docseek/internal/domain"
	"docseek/internal/embedding/cached"
	"docseek/internal/embedding/hashing"
	embedollama "docseek/internal/embedding/ollama"
	embedopenai "docseek/internal/embedding/openai"
	"docseek/internal/llm"
	llmollama "docseek/internal/llm/ollama"
	llmopenai "docseek/internal/llm/openai"
	"docseek/internal/loader"
	"docseek/internal/metrics"
	"docseek/internal/ocr"
	"docseek/internal/query"
	"docseek/internal/service"
	"docseek/internal/textstore"
	"docseek/internal/vectorstore"
	"docseek/internal/vectorstore/qdrant"
)

type Options struct {
	// SkipImages leaves the image loader out, so no caption model is opened.
	SkipImages bool
	// ForceOCR enables OCR regardless of the configuration.
	ForceOCR bool
}

// App owns every long-lived component; Close releases them in reverse order.
type App struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Store     *vectorstore.Store
	TextStore *textstore.Store
	Query     *query.Pipeline
	Service   *service.DocumentService

	closers []func() error
}

func Build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	if err := a.build(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config
	emb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return err
	}
	backend, err := NewBackend(cfg.VectorStore)
	if err != nil {
		return err
	}
	a.Store = vectorstore.New(vectorstore.Options{
		Layout:   vectorstore.Layout{Root: cfg.VectorStore.Dir},
		Embedder: emb,
		Splitter: chunker.NewRecursiveSplitter(cfg.Splitter.ChunkSize, cfg.Splitter.ChunkOverlap, a.Logger),
		Backend:  backend,
		Logger:   a.Logger,
	})
	a.closers = append(a.closers, a.Store.Close)
	if err := a.Store.LoadOrCreate(ctx); err != nil {
		return err
	}

	if cfg.TextStore.Enabled {
		a.TextStore, err = textstore.Open(ctx, cfg.TextStore.Path)
		if err != nil {
			return fmt.Errorf("opening full-text store: %w", err)
		}
		a.closers = append(a.closers, a.TextStore.Close)
	}

	model, err := NewChatModel(cfg.LLM, cfg.Query.MaxSentences)
	if err != nil {
		return err
	}
	a.Query = query.New(query.Options{
		Retriever:  a.Store,
		Model:      model,
		TopK:       cfg.VectorStore.TopK,
		Language:   cfg.LLM.Language,
		NumQueries: cfg.Query.NumQueries,
		Metrics:    a.Metrics,
		Logger:     a.Logger,
	})

	var images *loader.ImageLoader
	if !opts.SkipImages {
		images = a.imageLoader(opts.ForceOCR)
	}
	a.Service = service.New(service.Options{
		Store:     a.Store,
		Loader:    loader.Default(images),
		TextStore: a.TextStore,
		Query:     a.Query,
		Metrics:   a.Metrics,
		Logger:    a.Logger,
	})
	return nil
}

// imageLoader returns nil when neither captioning nor OCR is usable.
func (a *App) imageLoader(forceOCR bool) *loader.ImageLoader {
	var (
		captioner  loader.Captioner
		recognizer loader.Recognizer
	)
	if a.Config.Caption.Enabled {
		p, err := OpenCaptioner(a.Config.Caption, a.Logger)
		switch {
		case errors.Is(err, caption.ErrRuntimeUnavailable):
			a.Logger.Info("image captioning unavailable in this build")
		case err != nil:
			a.Logger.Warn("image captioning disabled", zap.Error(err))
		default:
			captioner = p
			a.closers = append(a.closers, p.Close)
		}
	}
	if a.Config.OCR.Enabled || forceOCR {
		t := NewOCR(a.Config.OCR, a.Logger)
		if t.Available() {
			recognizer = t
		} else {
			a.Logger.Warn("ocr disabled: executable not found", zap.String("command", a.Config.OCR.Command))
		}
	}
	if captioner == nil && recognizer == nil {
		return nil
	}
	return loader.NewImageLoader(captioner, recognizer, a.Logger)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewEmbedder builds the configured embedder behind a query cache.
func NewEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	var inner domain.Embedder
	switch cfg.Type {
	case "hashing", "":
		inner = hashing.NewEmbedder(cfg.Dimension)
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		c, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   seconds(cfg.OpenAI.TimeoutSecs),
			BatchSize: cfg.OpenAI.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		inner = c
	case "ollama":
		if cfg.Ollama == nil {
			return nil, errors.New("ollama embedder config missing")
		}
		e, err := embedollama.NewEmbedder(embedollama.Config{
			Host:    cfg.Ollama.Host,
			Model:   cfg.Ollama.Model,
			Timeout: seconds(cfg.Ollama.TimeoutSecs),
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	if cfg.CacheSize <= 0 {
		return inner, nil
	}
	return cached.New(inner, cfg.CacheSize)
}

func NewBackend(cfg config.VectorStoreConfig) (vectorstore.Backend, error) {
	switch cfg.Type {
	case "flat", "":
		return vectorstore.NewLocal(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.Dial(qdrant.Config{
			Addr:       cfg.Qdrant.Addr,
			Collection: cfg.Qdrant.Collection,
			Timeout:    seconds(cfg.Qdrant.TimeoutSecs),
		})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func NewChatModel(cfg config.LLMConfig, maxSentences int) (llm.ChatModel, error) {
	switch cfg.Type {
	case "extractive", "":
		return llm.NewExtractive(maxSentences), nil
	case "ollama":
		if cfg.Ollama == nil {
			return nil, errors.New("ollama llm config missing")
		}
		return llmollama.New(llmollama.Config{
			Host:        cfg.Ollama.Host,
			Model:       cfg.Ollama.Model,
			Temperature: cfg.Temperature,
			Timeout:     seconds(cfg.Ollama.TimeoutSecs),
		})
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai llm config missing")
		}
		return llmopenai.New(embedopenai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   seconds(cfg.OpenAI.TimeoutSecs),
		}, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown llm: %s", cfg.Type)
	}
}

// CaptionConfig maps the file configuration onto the caption pipeline.
func CaptionConfig(cfg config.CaptionConfig) caption.Config {
	img := caption.DefaultImageConfig()
	img.Size = cfg.ImageSize
	return caption.Config{
		EncoderPath: cfg.EncoderPath,
		DecoderPath: cfg.DecoderPath,
		VocabPath:   cfg.VocabPath,
		Hidden:      cfg.VisionHidden,
		Geometry: caption.DecoderGeometry{
			NumLayers: cfg.NumLayers,
			NumHeads:  cfg.NumHeads,
			HeadDim:   cfg.HeadDim,
		},
		Image: img,
		Generation: caption.GenerationConfig{
			MaxLength:     cfg.MaxLength,
			NumBeams:      cfg.NumBeams,
			LengthPenalty: cfg.LengthPenalty,
			BOSTokenID:    cfg.BOSTokenID,
			EOSTokenID:    cfg.EOSTokenID,
			PadTokenID:    cfg.PadTokenID,
		},
		Threads: cfg.Threads,
	}
}

func OpenCaptioner(cfg config.CaptionConfig, logger *zap.Logger) (*caption.Pipeline, error) {
	return caption.Open(CaptionConfig(cfg), logger)
}

func NewOCR(cfg config.OCRConfig, logger *zap.Logger) *ocr.Tesseract {
	return ocr.NewTesseract(ocr.Config{Command: cfg.Command, Languages: cfg.Languages}, logger)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
