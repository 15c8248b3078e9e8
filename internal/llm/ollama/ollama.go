package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"docseek/internal/llm"
)

type Config struct {
	Host        string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Chat talks to an Ollama server's /api/chat endpoint.
type Chat struct {
	client      *api.Client
	model       string
	temperature float64
}

func New(cfg Config) (*Chat, error) {
	u, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Host, err)
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Chat{
		client:      api.NewClient(u, &http.Client{Timeout: timeout}),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Chat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return c.chat(ctx, messages, false, nil)
}

func (c *Chat) ChatStream(ctx context.Context, messages []llm.Message, fn func(string) error) (string, error) {
	return c.chat(ctx, messages, true, fn)
}

func (c *Chat) chat(ctx context.Context, messages []llm.Message, stream bool, fn func(string) error) (string, error) {
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: make([]api.Message, len(messages)),
		Stream:   &stream,
		Options:  map[string]any{"temperature": c.temperature},
	}
	for i, m := range messages {
		req.Messages[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}
	var sb strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		delta := resp.Message.Content
		sb.WriteString(delta)
		if fn != nil && delta != "" {
			return fn(delta)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return sb.String(), nil
}

var _ llm.ChatModel = (*Chat)(nil)
