package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docseek/internal/config"
	"docseek/internal/embedding/cached"
	"docseek/internal/llm"
	"docseek/internal/service"
	"docseek/internal/vectorstore"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.VectorStore.Dir = filepath.Join(root, "db", "faiss")
	cfg.TextStore.Path = filepath.Join(root, "index", "fulltext.db")
	cfg.Caption.EncoderPath = filepath.Join(root, "missing-encoder.onnx")
	return cfg
}

func TestBuildIngestAndAsk(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	a, err := Build(ctx, cfg, zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	defer a.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "guide.txt")
	require.NoError(t, os.WriteFile(path, []byte("Backups run nightly at two in the morning."), 0o644))
	img := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0o644))

	report, err := a.Service.Ingest(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)

	ans, err := a.Service.Ask(ctx, "When do backups run?", false, nil)
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "Source: "+path)

	hits, err := a.Service.FullText(ctx, "backups")
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, a.Close())

	// reopening sees the saved index
	b, err := Build(ctx, cfg, zaptest.NewLogger(t), Options{SkipImages: true})
	require.NoError(t, err)
	defer b.Close()
	n, err := b.Service.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = os.Stat(vectorstore.Layout{Root: cfg.VectorStore.Dir}.ProvenanceFile())
	require.NoError(t, err)
}

func TestBuildWithoutTextStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.TextStore.Enabled = false
	a, err := Build(context.Background(), cfg, zaptest.NewLogger(t), Options{SkipImages: true})
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Service.FullText(context.Background(), "x")
	require.ErrorIs(t, err, service.ErrFullTextDisabled)
}

func TestNewEmbedder(t *testing.T) {
	emb, err := NewEmbedder(config.EmbedderConfig{Type: "hashing", Dimension: 64, CacheSize: 8})
	require.NoError(t, err)
	c, ok := emb.(*cached.Embedder)
	require.True(t, ok)
	assert.Equal(t, "hashing", c.Unwrap().Name())
	assert.Equal(t, 64, emb.Dimension())

	emb, err = NewEmbedder(config.EmbedderConfig{Type: "hashing", Dimension: 64})
	require.NoError(t, err)
	assert.Equal(t, "hashing", emb.Name())

	_, err = NewEmbedder(config.EmbedderConfig{Type: "word2vec"})
	require.Error(t, err)
	_, err = NewEmbedder(config.EmbedderConfig{Type: "openai"})
	require.Error(t, err)

	t.Setenv("DOCSEEK_APP_NO_KEY", "")
	_, err = NewEmbedder(config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIConfig{APIKeyEnv: "DOCSEEK_APP_NO_KEY"}})
	require.Error(t, err)
}

func TestNewChatModelAndBackend(t *testing.T) {
	m, err := NewChatModel(config.LLMConfig{Type: "extractive"}, 2)
	require.NoError(t, err)
	_, ok := m.(llm.DocumentAnswerer)
	assert.True(t, ok)

	_, err = NewChatModel(config.LLMConfig{Type: "ollama", Ollama: &config.OllamaConfig{Host: "http://localhost:11434"}}, 2)
	require.NoError(t, err)
	_, err = NewChatModel(config.LLMConfig{Type: "gemini"}, 2)
	require.Error(t, err)

	b, err := NewBackend(config.VectorStoreConfig{Type: "flat"})
	require.NoError(t, err)
	assert.IsType(t, &vectorstore.Local{}, b)
	_, err = NewBackend(config.VectorStoreConfig{Type: "qdrant"})
	require.Error(t, err)
	_, err = NewBackend(config.VectorStoreConfig{Type: "faiss-gpu"})
	require.Error(t, err)
}

func TestCaptionConfigMapping(t *testing.T) {
	cfg := config.Default().Caption
	cc := CaptionConfig(cfg)
	assert.Equal(t, 384, cc.Image.Size)
	assert.Equal(t, 768, cc.Hidden)
	assert.Equal(t, 12, cc.Geometry.NumLayers)
	assert.Equal(t, int64(30522), cc.Generation.BOSTokenID)
	assert.Equal(t, int64(102), cc.Generation.EOSTokenID)
	assert.Equal(t, 20, cc.Generation.MaxLength)
	assert.InDelta(t, 1.0, cc.Generation.LengthPenalty, 1e-9)
}
