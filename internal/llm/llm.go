package llm

import (
	"context"

	"docseek/internal/domain"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatModel answers a conversation. ChatStream calls fn with each delta as it
// arrives and returns the full text.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ChatStream(ctx context.Context, messages []Message, fn func(delta string) error) (string, error)
}

// DocumentAnswerer is implemented by models that answer directly from
// retrieved documents instead of a rendered prompt.
type DocumentAnswerer interface {
	AnswerFromDocuments(ctx context.Context, question string, docs []domain.Document) (string, error)
}

// Paraphraser is implemented by models that produce query variants without
// a prompt round trip.
type Paraphraser interface {
	Paraphrase(ctx context.Context, question string, n int) ([]string, error)
}

// LastUser returns the content of the last user message.
func LastUser(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
