// Package query answers questions over the vector store: retrieve, reorder,
// prompt and generate.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docseek/internal/domain"
	"docseek/internal/llm"
	"docseek/internal/metrics"
)

var ErrEmptyQuestion = errors.New("question is empty")

const (
	DefaultTopK       = 20
	DefaultNumQueries = 3
	DefaultLanguage   = "Korean"
)

type Options struct {
	Retriever  domain.Retriever
	Model      llm.ChatModel
	TopK       int
	Language   string
	NumQueries int
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Answer is the model output together with the documents it was given, in
// prompt order.
type Answer struct {
	Text    string                `json:"answer"`
	Sources []domain.SearchResult `json:"sources"`
	Queries []string              `json:"queries"`
}

type Pipeline struct {
	retriever  domain.Retriever
	model      llm.ChatModel
	topK       int
	language   string
	numQueries int
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func New(opts Options) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.NumQueries <= 0 {
		opts.NumQueries = DefaultNumQueries
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		retriever:  opts.Retriever,
		model:      opts.Model,
		topK:       opts.TopK,
		language:   opts.Language,
		numQueries: opts.NumQueries,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	return p.run(ctx, question, false, nil)
}

// AskStream behaves like Ask and passes generated text to fn as it arrives.
func (p *Pipeline) AskStream(ctx context.Context, question string, fn func(string) error) (*Answer, error) {
	return p.run(ctx, question, false, fn)
}

// MultiQuery retrieves with model-written paraphrases of the question as well
// as the question itself.
func (p *Pipeline) MultiQuery(ctx context.Context, question string) (*Answer, error) {
	return p.run(ctx, question, true, nil)
}

func (p *Pipeline) MultiQueryStream(ctx context.Context, question string, fn func(string) error) (*Answer, error) {
	return p.run(ctx, question, true, fn)
}

func (p *Pipeline) run(ctx context.Context, question string, multi bool, fn func(string) error) (ans *Answer, err error) {
	mode := "single"
	if multi {
		mode = "multi"
	}
	start := time.Now()
	defer func() { p.metrics.ObserveQuery(mode, start, err) }()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	queries := []string{question}
	var results []domain.SearchResult
	if multi {
		results, queries, err = p.RetrieveMulti(ctx, question)
	} else {
		results, err = p.Retrieve(ctx, question)
	}
	if err != nil {
		return nil, err
	}
	results = LongContextReorder(results)
	if p.metrics != nil {
		p.metrics.RetrievedDocs.Observe(float64(len(results)))
	}

	text, err := p.generate(ctx, question, results, fn)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("answered question",
		zap.String("mode", mode),
		zap.Int("queries", len(queries)),
		zap.Int("documents", len(results)),
		zap.Duration("elapsed", time.Since(start)))
	return &Answer{Text: text, Sources: results, Queries: queries}, nil
}

// Retrieve returns the top-K results for question in descending relevance.
func (p *Pipeline) Retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	res, err := p.retriever.SimilaritySearch(ctx, question, p.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieving documents: %w", err)
	}
	return res, nil
}

// RetrieveMulti searches with the question and its paraphrases concurrently
// and returns the union by record id, in query order. The queries used are
// returned alongside.
func (p *Pipeline) RetrieveMulti(ctx context.Context, question string) ([]domain.SearchResult, []string, error) {
	variants, err := p.Paraphrases(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		p.logger.Warn("paraphrasing failed, searching with the question only", zap.Error(err))
		variants = nil
	}
	queries := append([]string{question}, variants...)

	perQuery := make([][]domain.SearchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := p.retriever.SimilaritySearch(gctx, q, p.topK)
			if err != nil {
				return fmt.Errorf("retrieving documents for %q: %w", q, err)
			}
			perQuery[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return unionByID(perQuery), queries, nil
}

// Paraphrases asks the model for alternative phrasings of question.
func (p *Pipeline) Paraphrases(ctx context.Context, question string) ([]string, error) {
	if pp, ok := p.model.(llm.Paraphraser); ok {
		return pp.Paraphrase(ctx, question, p.numQueries)
	}
	out, err := p.model.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(paraphrasePrompt, p.numQueries)},
		{Role: llm.RoleUser, Content: question},
	})
	if err != nil {
		return nil, fmt.Errorf("generating paraphrases: %w", err)
	}
	return ParseParaphrases(out, question, p.numQueries), nil
}

func (p *Pipeline) generate(ctx context.Context, question string, results []domain.SearchResult, fn func(string) error) (string, error) {
	docs := make([]domain.Document, len(results))
	for i, r := range results {
		docs[i] = r.Document
	}
	if da, ok := p.model.(llm.DocumentAnswerer); ok {
		text, err := da.AnswerFromDocuments(ctx, question, docs)
		if err != nil {
			return "", fmt.Errorf("generating answer: %w", err)
		}
		if fn != nil {
			if err := fn(text); err != nil {
				return "", err
			}
		}
		return text, nil
	}

	msgs := Messages(question, p.language, docs)
	var (
		text string
		err  error
	)
	if fn != nil {
		text, err = p.model.ChatStream(ctx, msgs, fn)
	} else {
		text, err = p.model.Chat(ctx, msgs)
	}
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return text, nil
}

func unionByID(lists [][]domain.SearchResult) []domain.SearchResult {
	seen := make(map[string]bool)
	var out []domain.SearchResult
	for _, list := range lists {
		for _, r := range list {
			key := r.Document.ID
			if key == "" {
				key = r.Document.Source() + "\x00" + r.Document.Content
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}
