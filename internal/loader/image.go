package loader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"docseek/internal/domain"
)

// Content types attached to image documents under domain.MetaType.
const (
	TypeCaption = "caption"
	TypeOCR     = "ocr"
)

// Captioner describes an image in natural language.
type Captioner interface {
	CaptionFile(ctx context.Context, path string) (string, error)
}

// Recognizer extracts printed text from an image.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// ImageLoader emits a caption document and, when a recognizer is set, an OCR
// document for images that contain text. Either stage may be nil.
type ImageLoader struct {
	captioner  Captioner
	recognizer Recognizer
	logger     *zap.Logger
}

func NewImageLoader(c Captioner, r Recognizer, logger *zap.Logger) *ImageLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageLoader{captioner: c, recognizer: r, logger: logger}
}

// Load fails when captioning fails. OCR failures are logged and skipped.
func (l *ImageLoader) Load(ctx context.Context, path string) ([]domain.Document, error) {
	var docs []domain.Document
	if l.captioner != nil {
		caption, err := l.captioner.CaptionFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("caption: %w", err)
		}
		docs = append(docs, imageDocument(path, caption, TypeCaption))
	}
	if l.recognizer != nil {
		text, err := l.recognizer.Recognize(ctx, path)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("ocr failed", zap.String("path", path), zap.Error(err))
		case text != "":
			docs = append(docs, imageDocument(path, text, TypeOCR))
		}
	}
	return docs, nil
}

func imageDocument(path, content, kind string) domain.Document {
	return domain.Document{
		Content:  content,
		Metadata: map[string]any{domain.MetaImagePath: path, domain.MetaType: kind},
	}
}
