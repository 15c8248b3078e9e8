package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"docseek/internal/domain"
)

// DefaultSeparators are tried in order; the empty separator splits into characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter splits text on the first separator present, recursing into
// pieces that are still too long, then merges pieces back into chunks of at
// most chunkSize characters with up to chunkOverlap characters of overlap.
// Separators stay attached to the start of the piece that follows them.
type RecursiveSplitter struct {
	chunkSize int
	splitter  textsplitter.RecursiveCharacter
	logger    *zap.Logger
}

// NewRecursiveSplitter creates a splitter. Lengths are counted in characters.
func NewRecursiveSplitter(chunkSize, chunkOverlap int, logger *zap.Logger) *RecursiveSplitter {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecursiveSplitter{
		chunkSize: chunkSize,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(DefaultSeparators),
			textsplitter.WithKeepSeparator(true),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
		logger: logger,
	}
}

// SplitDocuments splits every document and copies its metadata onto each chunk.
func (s *RecursiveSplitter) SplitDocuments(docs []domain.Document) []domain.Document {
	var out []domain.Document
	for _, d := range docs {
		for _, text := range s.SplitText(d.Content) {
			chunk := d.WithMetadata()
			chunk.ID = ""
			chunk.Content = text
			out = append(out, chunk)
		}
	}
	return out
}

// SplitText splits a single text. Blank chunks are dropped.
func (s *RecursiveSplitter) SplitText(text string) []string {
	pieces, err := s.splitter.SplitText(text)
	if err != nil {
		s.logger.Warn("splitting failed, keeping text whole", zap.Error(err))
		pieces = []string{text}
	}
	out := pieces[:0]
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n := utf8.RuneCountInString(p); n > s.chunkSize {
			s.logger.Warn("created a chunk longer than the configured size",
				zap.Int("length", n), zap.Int("chunk_size", s.chunkSize))
		}
		out = append(out, p)
	}
	return out
}
