// Package ocr extracts printed text from images with the tesseract CLI.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strings"

	// registered for image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"go.uber.org/zap"
)

type Config struct {
	// Command is the tesseract executable, looked up on PATH.
	Command string
	// Languages is passed to -l, e.g. "kor+eng".
	Languages string
}

type Tesseract struct {
	command   string
	languages string
	logger    *zap.Logger
}

func NewTesseract(cfg Config, logger *zap.Logger) *Tesseract {
	if cfg.Command == "" {
		cfg.Command = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "kor+eng"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tesseract{command: cfg.Command, languages: cfg.Languages, logger: logger}
}

// Available reports whether the tesseract executable can be found.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.command)
	return err == nil
}

// Recognize returns the trimmed text found in the image at path. Files whose
// image format cannot be detected yield an empty string.
func (t *Tesseract) Recognize(ctx context.Context, path string) (string, error) {
	ok, err := isImage(path)
	if err != nil {
		return "", err
	}
	if !ok {
		t.logger.Debug("skipping ocr for unknown image format", zap.String("path", path))
		return "", nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.command, path, "stdout", "-l", t.languages)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tesseract %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func isImage(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, _, err = image.DecodeConfig(f)
	return err == nil, nil
}
