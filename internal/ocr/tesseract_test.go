package ocr

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	path := filepath.Join(dir, "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func fakeTesseract(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-tesseract")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRecognizePassesArgumentsAndTrims(t *testing.T) {
	dir := t.TempDir()
	img := writePNG(t, dir)
	cmd := fakeTesseract(t, dir, `echo "  $2 $3 $4  "; echo`)

	tess := NewTesseract(Config{Command: cmd}, zaptest.NewLogger(t))
	text, err := tess.Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "stdout -l kor+eng", text)
}

func TestRecognizeSkipsUnknownFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.heic")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	cmd := fakeTesseract(t, dir, `echo should not run; exit 1`)

	text, err := NewTesseract(Config{Command: cmd}, nil).Recognize(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestRecognizeReportsCommandFailure(t *testing.T) {
	dir := t.TempDir()
	img := writePNG(t, dir)
	cmd := fakeTesseract(t, dir, `echo "missing language data" >&2; exit 1`)

	_, err := NewTesseract(Config{Command: cmd}, nil).Recognize(context.Background(), img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing language data")
}
