package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LogConfig controls the zap logger built at startup.
type LogConfig struct {
	Level string `yaml:"level"`
	Style string `yaml:"style"`
}

// OpenAIConfig holds configuration for OpenAI-compatible HTTP endpoints.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// OllamaConfig holds connection details for an Ollama server.
type OllamaConfig struct {
	Host        string `yaml:"host"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	Dimension int           `yaml:"dimension"`
	CacheSize int           `yaml:"cache_size"`
	OpenAI    *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama    *OllamaConfig `yaml:"ollama,omitempty"`
}

// SplitterConfig configures the recursive character splitter.
type SplitterConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Dir    string        `yaml:"dir"`
	TopK   int           `yaml:"top_k"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr        string `yaml:"addr"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// CaptionConfig points at the exported captioning model and sets its geometry.
type CaptionConfig struct {
	Enabled       bool    `yaml:"enabled"`
	EncoderPath   string  `yaml:"encoder_path"`
	DecoderPath   string  `yaml:"decoder_path"`
	VocabPath     string  `yaml:"vocab_path"`
	ImageSize     int     `yaml:"image_size"`
	MaxLength     int     `yaml:"max_length"`
	NumBeams      int     `yaml:"num_beams"`
	// LengthPenalty divides beam scores by length^penalty.
	LengthPenalty float64 `yaml:"length_penalty"`
	BOSTokenID    int64   `yaml:"bos_token_id"`
	EOSTokenID    int64   `yaml:"eos_token_id"`
	PadTokenID    int64   `yaml:"pad_token_id"`
	NumLayers     int     `yaml:"num_layers"`
	NumHeads      int     `yaml:"num_heads"`
	HeadDim       int     `yaml:"head_dim"`
	VisionHidden  int     `yaml:"vision_hidden"`
	Threads       int     `yaml:"threads"`
}

// OCRConfig configures the tesseract invocation.
type OCRConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Command   string `yaml:"command"`
	Languages string `yaml:"languages"`
}

// LLMConfig selects the chat model used for answers and paraphrasing.
type LLMConfig struct {
	Type        string        `yaml:"type"`
	Temperature float64       `yaml:"temperature"`
	Language    string        `yaml:"language"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
}

// QueryConfig configures retrieval at question time.
type QueryConfig struct {
	MultiQuery   bool `yaml:"multi_query"`
	NumQueries   int  `yaml:"num_queries"`
	MaxSentences int  `yaml:"max_sentences"`
}

// TextStoreConfig configures the optional full-text index.
type TextStoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Splitter    SplitterConfig    `yaml:"splitter"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Caption     CaptionConfig     `yaml:"caption"`
	OCR         OCRConfig         `yaml:"ocr"`
	LLM         LLMConfig         `yaml:"llm"`
	Query       QueryConfig       `yaml:"query"`
	TextStore   TextStoreConfig   `yaml:"text_store"`
	Server      ServerConfig      `yaml:"server"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docseek/config.yaml.
// If neither exists, it writes defaults to ~/.config/docseek/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docseek", "config.yaml"), nil
}

// Default returns a fully populated configuration.
func Default() *AppConfig { return defaultConfig() }

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Log:         LogConfig{Level: "info", Style: "terminal"},
		Embedder:    EmbedderConfig{Type: "hashing"},
		VectorStore: VectorStoreConfig{Type: "flat"},
		Caption:     CaptionConfig{Enabled: true},
		OCR:         OCRConfig{Enabled: false},
		LLM:         LLMConfig{Type: "extractive"},
		TextStore:   TextStoreConfig{Enabled: true},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Style == "" {
		cfg.Log.Style = "terminal"
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 256
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		applyOllamaDefaults(cfg.Embedder.Ollama, "bge-m3")
	}

	if cfg.Splitter.ChunkSize == 0 {
		cfg.Splitter.ChunkSize = 500
	}
	if cfg.Splitter.ChunkOverlap == 0 {
		cfg.Splitter.ChunkOverlap = 100
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "flat"
	}
	if cfg.VectorStore.Dir == "" {
		cfg.VectorStore.Dir = filepath.Join("db", "faiss")
	}
	if cfg.VectorStore.TopK == 0 {
		cfg.VectorStore.TopK = 20
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.Addr == "" {
			cfg.VectorStore.Qdrant.Addr = "localhost:6334"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "langchain-rs"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.Caption.EncoderPath == "" {
		cfg.Caption.EncoderPath = filepath.Join("models", "blip_vision_model.onnx")
	}
	if cfg.Caption.DecoderPath == "" {
		cfg.Caption.DecoderPath = filepath.Join("models", "blip_text_decoder_with_past.onnx")
	}
	if cfg.Caption.VocabPath == "" {
		cfg.Caption.VocabPath = filepath.Join("models", "vocab.txt")
	}
	if cfg.Caption.ImageSize == 0 {
		cfg.Caption.ImageSize = 384
	}
	if cfg.Caption.MaxLength == 0 {
		cfg.Caption.MaxLength = 20
	}
	if cfg.Caption.NumBeams == 0 {
		cfg.Caption.NumBeams = 1
	}
	if cfg.Caption.LengthPenalty == 0 {
		cfg.Caption.LengthPenalty = 1.0
	}
	if cfg.Caption.BOSTokenID == 0 {
		cfg.Caption.BOSTokenID = 30522
	}
	if cfg.Caption.EOSTokenID == 0 {
		cfg.Caption.EOSTokenID = 102
	}
	if cfg.Caption.NumLayers == 0 {
		cfg.Caption.NumLayers = 12
	}
	if cfg.Caption.NumHeads == 0 {
		cfg.Caption.NumHeads = 12
	}
	if cfg.Caption.HeadDim == 0 {
		cfg.Caption.HeadDim = 64
	}
	if cfg.Caption.VisionHidden == 0 {
		cfg.Caption.VisionHidden = 768
	}

	if cfg.OCR.Command == "" {
		cfg.OCR.Command = "tesseract"
	}
	if cfg.OCR.Languages == "" {
		cfg.OCR.Languages = "kor+eng"
	}

	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "extractive"
	}
	if cfg.LLM.Language == "" {
		cfg.LLM.Language = "Korean"
	}
	if cfg.LLM.Type == "ollama" {
		if cfg.LLM.Ollama == nil {
			cfg.LLM.Ollama = &OllamaConfig{}
		}
		applyOllamaDefaults(cfg.LLM.Ollama, "llama3.2")
	}
	if cfg.LLM.Type == "openai" {
		if cfg.LLM.OpenAI == nil {
			cfg.LLM.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.LLM.OpenAI, "gpt-4o-mini")
	}

	if cfg.Query.NumQueries == 0 {
		cfg.Query.NumQueries = 3
	}
	if cfg.Query.MaxSentences == 0 {
		cfg.Query.MaxSentences = 3
	}

	if cfg.TextStore.Path == "" {
		cfg.TextStore.Path = filepath.Join("index", "fulltext.db")
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
}

func applyOllamaDefaults(c *OllamaConfig, model string) {
	if c.Host == "" {
		c.Host = os.Getenv("OLLAMA_HOST")
	}
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 120
	}
}
