package domain

import "context"

// Metadata keys shared by loaders, the vector store and the query pipeline.
const (
	MetaSource     = "source"
	MetaFilePath   = "file_path"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaImagePath  = "image_path"
	MetaType       = "type"
)

// Document is a unit of extracted text together with where it came from.
// Loaders create documents; the splitter derives chunk documents from them.
type Document struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"page_content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source returns the originating file path of the document, looking at the
// source and image_path metadata keys in that order.
func (d Document) Source() string {
	for _, key := range []string{MetaSource, MetaImagePath, MetaFilePath} {
		if v, ok := d.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// WithMetadata returns a copy of the document carrying a cloned metadata map.
func (d Document) WithMetadata() Document {
	meta := make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		meta[k] = v
	}
	d.Metadata = meta
	return d
}

// SearchResult is a retrieved record. Score is higher for better matches;
// Distance is the raw index distance (lower is closer).
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Distance float64  `json:"distance"`
}

// Embedder converts text into fixed-dimension vectors.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Splitter breaks documents into bounded chunks.
type Splitter interface {
	SplitDocuments(docs []Document) []Document
}

// Summarizer produces a brief extractive summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Retriever returns the records most similar to a query.
type Retriever interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]SearchResult, error)
}
