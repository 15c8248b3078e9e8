package llm

import (
	"context"
	"fmt"
	"strings"

	"docseek/internal/domain"
	"docseek/internal/summarizer"
)

// NoMatchAnswer is returned when no retrieved document shares a word with
// the question.
const NoMatchAnswer = "No matching file was found for this question."

// Extractive is an offline model. It answers with a frequency summary of the
// documents that overlap the question and names the best matching source.
type Extractive struct {
	summarizer   *summarizer.FrequencySummarizer
	stopwords    map[string]struct{}
	maxSentences int
}

func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Extractive{
		summarizer:   summarizer.NewFrequencySummarizer(),
		stopwords:    summarizer.Stopwords(),
		maxSentences: maxSentences,
	}
}

func (e *Extractive) AnswerFromDocuments(ctx context.Context, question string, docs []domain.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q := e.keywords(question)
	best, bestScore := -1, 0.0
	var relevant []string
	for i, d := range docs {
		score := summarizer.Ochiai(q, d.Content)
		if score <= 0 {
			continue
		}
		relevant = append(relevant, d.Content)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return NoMatchAnswer, nil
	}
	summary, err := e.summarizer.Summarize(strings.Join(relevant, "\n"), e.maxSentences)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n\nSource: %s", summary, location(docs[best])), nil
}

// Chat summarizes the system messages when there are any, otherwise the last
// user message.
func (e *Extractive) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sys []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
		}
	}
	text := LastUser(messages)
	if len(sys) > 0 {
		text = strings.Join(sys, "\n")
	}
	return e.summarizer.Summarize(text, e.maxSentences)
}

func (e *Extractive) ChatStream(ctx context.Context, messages []Message, fn func(string) error) (string, error) {
	out, err := e.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	if fn != nil {
		if err := fn(out); err != nil {
			return "", err
		}
	}
	return out, nil
}

// Paraphrase offers the keyword form of the question as its only variant.
func (e *Extractive) Paraphrase(_ context.Context, question string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var kept []string
	for _, tok := range summarizer.Tokens(question) {
		if _, stop := e.stopwords[tok]; !stop {
			kept = append(kept, tok)
		}
	}
	v := strings.Join(kept, " ")
	if v == "" || v == strings.ToLower(strings.TrimSpace(question)) {
		return nil, nil
	}
	return []string{v}, nil
}

func (e *Extractive) keywords(text string) map[string]struct{} {
	set := summarizer.TokenSet(text)
	for t := range set {
		if _, stop := e.stopwords[t]; stop {
			delete(set, t)
		}
	}
	return set
}

func location(d domain.Document) string {
	src := d.Source()
	if page, ok := d.Metadata[domain.MetaPage]; ok {
		return fmt.Sprintf("%s (page %v)", src, page)
	}
	return src
}

var (
	_ ChatModel        = (*Extractive)(nil)
	_ DocumentAnswerer = (*Extractive)(nil)
	_ Paraphraser      = (*Extractive)(nil)
)
