package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docseek/internal/domain"
	"docseek/internal/llm"
	"docseek/internal/metrics"
)

type fakeRetriever struct {
	mu      sync.Mutex
	results map[string][]domain.SearchResult
	calls   []string
	ks      []int
	err     error
}

func (f *fakeRetriever) SimilaritySearch(_ context.Context, q string, k int) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	f.ks = append(f.ks, k)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[q], nil
}

type fakeModel struct {
	mu       sync.Mutex
	reply    string
	deltas   []string
	err      error
	received [][]llm.Message
}

func (m *fakeModel) Chat(_ context.Context, msgs []llm.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, msgs)
	return m.reply, m.err
}

func (m *fakeModel) ChatStream(ctx context.Context, msgs []llm.Message, fn func(string) error) (string, error) {
	m.mu.Lock()
	m.received = append(m.received, msgs)
	m.mu.Unlock()
	for _, d := range m.deltas {
		if err := fn(d); err != nil {
			return "", err
		}
	}
	return strings.Join(m.deltas, ""), m.err
}

// paraphrasingModel answers paraphrase requests with a fixed list.
type paraphrasingModel struct {
	fakeModel
	paraphrases string
}

func (m *paraphrasingModel) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	if strings.Contains(msgs[0].Content, "different versions") {
		return m.paraphrases, nil
	}
	return m.fakeModel.Chat(ctx, msgs)
}

func result(id, content string) domain.SearchResult {
	return domain.SearchResult{Document: domain.Document{
		ID: id, Content: content, Metadata: map[string]any{domain.MetaSource: id + ".txt"},
	}}
}

func ids(rs []domain.SearchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Document.ID
	}
	return out
}

func TestLongContextReorder(t *testing.T) {
	assert.Equal(t, []int{1, 3, 5, 4, 2}, LongContextReorder([]int{1, 2, 3, 4, 5}))
	assert.Equal(t, []int{2, 4, 3, 1}, LongContextReorder([]int{1, 2, 3, 4}))
	assert.Equal(t, []int{1}, LongContextReorder([]int{1}))
	assert.Empty(t, LongContextReorder([]int{}))
}

func TestAskRendersPromptWithReorderedContext(t *testing.T) {
	r := &fakeRetriever{results: map[string][]domain.SearchResult{
		"where is the budget?": {result("a", "alpha"), result("b", "bravo"), result("c", "charlie")},
	}}
	m := &fakeModel{reply: "It is in a.txt"}
	p := New(Options{Retriever: r, Model: m, Logger: zaptest.NewLogger(t)})

	ans, err := p.Ask(context.Background(), "  where is the budget?  ")
	require.NoError(t, err)
	assert.Equal(t, "It is in a.txt", ans.Text)
	assert.Equal(t, []string{"a", "c", "b"}, ids(ans.Sources))
	assert.Equal(t, []string{"where is the budget?"}, ans.Queries)
	assert.Equal(t, []int{DefaultTopK}, r.ks)

	require.Len(t, m.received, 1)
	msgs := m.received[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "You are a helpful file exploration assistant."))
	assert.Contains(t, msgs[0].Content, "[file: a.txt]\nalpha\n\n[file: c.txt]\ncharlie\n\n[file: b.txt]\nbravo")
	assert.True(t, strings.HasSuffix(msgs[0].Content, "Please always answer in Korean."))
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "where is the budget?"}, msgs[1])
}

func TestAskStreamForwardsDeltas(t *testing.T) {
	r := &fakeRetriever{results: map[string][]domain.SearchResult{"q": {result("a", "alpha")}}}
	m := &fakeModel{deltas: []string{"an", "swer"}}
	reg := metrics.New()
	p := New(Options{Retriever: r, Model: m, Language: "English", Metrics: reg})

	var got []string
	ans, err := p.AskStream(context.Background(), "q", func(d string) error {
		got = append(got, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Text)
	assert.Equal(t, []string{"an", "swer"}, got)
	assert.Contains(t, m.received[0][0].Content, "Please always answer in English.")
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	p := New(Options{Retriever: &fakeRetriever{}, Model: &fakeModel{}})
	_, err := p.Ask(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAskWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	p := New(Options{Retriever: &fakeRetriever{err: boom}, Model: &fakeModel{}})
	_, err := p.Ask(context.Background(), "q")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "retrieving documents")

	p = New(Options{Retriever: &fakeRetriever{}, Model: &fakeModel{err: boom}})
	_, err = p.Ask(context.Background(), "q")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "generating answer")
}

func TestMultiQueryUnionsInQueryOrder(t *testing.T) {
	r := &fakeRetriever{results: map[string][]domain.SearchResult{
		"budget?":            {result("a", "alpha"), result("b", "bravo")},
		"where is the money": {result("b", "bravo"), result("c", "charlie")},
		"finance report":     {result("d", "delta"), result("a", "alpha")},
	}}
	m := &paraphrasingModel{
		fakeModel:   fakeModel{reply: "done"},
		paraphrases: "1. where is the money\n\n2) finance report\n- budget?\n",
	}
	p := New(Options{Retriever: r, Model: m, NumQueries: 3})

	ans, err := p.MultiQuery(context.Background(), "budget?")
	require.NoError(t, err)
	assert.Equal(t, []string{"budget?", "where is the money", "finance report"}, ans.Queries)
	assert.ElementsMatch(t, ans.Queries, r.calls)
	// union a b c d, then reordered
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids(ans.Sources))
	assert.Equal(t, "done", ans.Text)
}

func TestMultiQueryFailsWhenAnyRetrievalFails(t *testing.T) {
	boom := errors.New("offline")
	m := &paraphrasingModel{paraphrases: "one\ntwo"}
	p := New(Options{Retriever: &fakeRetriever{err: boom}, Model: m})
	_, err := p.MultiQuery(context.Background(), "q")
	require.ErrorIs(t, err, boom)
}

// brokenParaphraser fails paraphrase requests only.
type brokenParaphraser struct {
	fakeModel
}

func (m *brokenParaphraser) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	if strings.Contains(msgs[0].Content, "different versions") {
		return "", errors.New("model overloaded")
	}
	return m.fakeModel.Chat(ctx, msgs)
}

func TestMultiQueryFallsBackToQuestionWhenParaphrasingFails(t *testing.T) {
	r := &fakeRetriever{results: map[string][]domain.SearchResult{
		"budget?": {result("a", "alpha")},
	}}
	m := &brokenParaphraser{fakeModel: fakeModel{reply: "done"}}
	p := New(Options{Retriever: r, Model: m, Logger: zaptest.NewLogger(t)})

	ans, err := p.MultiQuery(context.Background(), "budget?")
	require.NoError(t, err)
	assert.Equal(t, []string{"budget?"}, ans.Queries)
	assert.Equal(t, []string{"a"}, ids(ans.Sources))
	assert.Equal(t, "done", ans.Text)
}

func TestExtractiveModelAnswersFromDocuments(t *testing.T) {
	r := &fakeRetriever{results: map[string][]domain.SearchResult{
		"where invoice march": {result("notes", "The March invoice is stored in the finance share.")},
		"Where is the invoice for March?": {
			result("menu", "Lunch is served at noon."),
			result("notes", "The March invoice is stored in the finance share."),
		},
	}}
	p := New(Options{Retriever: r, Model: llm.NewExtractive(2)})

	ans, err := p.MultiQuery(context.Background(), "Where is the invoice for March?")
	require.NoError(t, err)
	assert.Equal(t, []string{"Where is the invoice for March?", "where invoice march"}, ans.Queries)
	assert.Contains(t, ans.Text, "The March invoice is stored in the finance share.")
	assert.Contains(t, ans.Text, "Source: notes.txt")

	var streamed []string
	ans, err = p.AskStream(context.Background(), "Where is the invoice for March?", func(d string) error {
		streamed = append(streamed, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ans.Text}, streamed)
}

func TestParseParaphrases(t *testing.T) {
	text := "1. First variant\n2. first VARIANT\n\n* Original\n3) Third one\n- Fourth"
	assert.Equal(t, []string{"First variant", "Third one"}, ParseParaphrases(text, "original", 2))
	assert.Equal(t, []string{"2024 budget"}, ParseParaphrases("2024 budget", "q", 3))
}

func TestRenderContextIncludesPageAndType(t *testing.T) {
	docs := []domain.Document{
		{Content: "x", Metadata: map[string]any{domain.MetaSource: "a.pdf", domain.MetaPage: 3}},
		{Content: "y", Metadata: map[string]any{domain.MetaImagePath: "cat.png", domain.MetaType: "caption"}},
	}
	assert.Equal(t, "[file: a.pdf, page 3]\nx\n\n[file: cat.png, caption]\ny", RenderContext(docs))
	assert.Empty(t, RenderContext(nil))
}
