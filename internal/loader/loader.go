// Package loader turns files on disk into documents, dispatching on the
// file extension.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"docseek/internal/domain"
)

// ErrUnsupported is returned for files no registered loader handles.
var ErrUnsupported = errors.New("unsupported file type")

// Loader extracts documents from one file.
type Loader interface {
	Load(ctx context.Context, path string) ([]domain.Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) ([]domain.Document, error)

func (f LoaderFunc) Load(ctx context.Context, path string) ([]domain.Document, error) {
	return f(ctx, path)
}

type Registry struct {
	byExt map[string]Loader
}

func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Loader)}
}

// Register binds l to each extension, given with or without the leading dot.
func (r *Registry) Register(l Loader, exts ...string) {
	for _, ext := range exts {
		r.byExt[normalizeExt(ext)] = l
	}
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Load(ctx context.Context, path string) ([]domain.Document, error) {
	l, ok := r.byExt[normalizeExt(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	docs, err := l.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return docs, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ImageExtensions are the file types routed to the image loader.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

// Default returns a registry with the PDF, docx and plain-text loaders and,
// when img is non-nil, the image loader.
func Default(img *ImageLoader) *Registry {
	r := NewRegistry()
	r.Register(LoaderFunc(LoadPDF), ".pdf")
	r.Register(LoaderFunc(LoadDocx), ".docx")
	r.Register(LoaderFunc(LoadText), ".txt", ".md")
	if img != nil {
		r.Register(img, ImageExtensions...)
	}
	return r
}
