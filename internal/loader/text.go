package loader

import (
	"context"
	"os"
	"strings"

	"docseek/internal/domain"
)

// LoadText reads a UTF-8 text file as a single document.
func LoadText(_ context.Context, path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []domain.Document{{
		Content:  text,
		Metadata: map[string]any{domain.MetaSource: path},
	}}, nil
}
