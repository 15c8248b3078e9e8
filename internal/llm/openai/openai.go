package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	embedopenai "docseek/internal/embedding/openai"
	"docseek/internal/llm"
)

// Chat calls an OpenAI-compatible /chat/completions endpoint through the
// shared HTTP client, so it inherits the retry policy.
type Chat struct {
	client      *embedopenai.Client
	temperature float64
}

// New builds a chat model; cfg.Model names the chat model.
func New(cfg embedopenai.Config, temperature float64) (*Chat, error) {
	client, err := embedopenai.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, temperature), nil
}

func NewWithClient(client *embedopenai.Client, temperature float64) *Chat {
	return &Chat{client: client, temperature: temperature}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

func (c *Chat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	payload, err := c.client.PostJSON(ctx, "/chat/completions", chatRequest{
		Model: c.client.Model(), Messages: messages, Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("openai chat: decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai chat: no choices returned")
	}
	return out.Choices[0].Message.Content, nil
}

func (c *Chat) ChatStream(ctx context.Context, messages []llm.Message, fn func(string) error) (string, error) {
	resp, err := c.client.Post(ctx, "/chat/completions", chatRequest{
		Model: c.client.Model(), Messages: messages, Temperature: c.temperature, Stream: true,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	defer resp.Body.Close()

	var sb strings.Builder
	r := bufio.NewReader(resp.Body)
	for {
		delta, done, err := readEvent(r)
		if err != nil {
			return "", fmt.Errorf("openai chat stream: %w", err)
		}
		if delta != "" {
			sb.WriteString(delta)
			if fn != nil {
				if err := fn(delta); err != nil {
					return "", err
				}
			}
		}
		if done {
			return sb.String(), nil
		}
	}
}

// readEvent reads one server-sent event line. Lines that are not data events
// or do not decode yield an empty delta.
func readEvent(r *bufio.Reader) (delta string, done bool, err error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			d, _, _ := parseData(line)
			return d, true, nil
		}
		return "", true, err
	}
	return parseData(line)
}

func parseData(line string) (string, bool, error) {
	line = strings.TrimSpace(line)
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false, nil
	}
	payload = strings.TrimSpace(payload)
	if payload == "[DONE]" {
		return "", true, nil
	}
	var evt struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &evt); err != nil || len(evt.Choices) == 0 {
		return "", false, nil
	}
	return evt.Choices[0].Delta.Content, false, nil
}

var _ llm.ChatModel = (*Chat)(nil)
