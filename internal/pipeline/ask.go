package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/DreamCats/briefly/internal/llm"
	"github.com/DreamCats/briefly/internal/prompt"
	"github.com/DreamCats/briefly/internal/retrieval"
)

// Source is one chunk an answer was grounded on. Text is left empty for
// chunks that fell below the relevance floor.
type Source struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

// Answer is the result of a single free-form question.
type Answer struct {
	Query     string             `json:"query"`
	Text      string             `json:"answer"`
	NoContext bool               `json:"no_context,omitempty"`
	BestScore float32            `json:"best_score"`
	Sources   []Source           `json:"sources"`
	Results   []retrieval.Result `json:"-"`
}

type askOptions struct {
	k        int
	minScore float64
}

// AskOption adjusts a single Ask call.
type AskOption func(*askOptions)

// WithK overrides retrieval.top_k.
func WithK(k int) AskOption {
	return func(o *askOptions) {
		if k > 0 {
			o.k = k
		}
	}
}

// WithMinScore overrides retrieval.min_score. 0 disables the floor; Ask
// rejects values outside [0, 1].
func WithMinScore(f float64) AskOption {
	return func(o *askOptions) {
		o.minScore = f
	}
}

// ErrInvalidMinScore means a relevance floor outside [0, 1] was requested.
var ErrInvalidMinScore = errors.New("min_score must be within [0, 1]")

// Ask answers query from the top-k chunks. When nothing clears the
// relevance floor the configured no-context answer is returned and the
// model is not called.
func (e *Engine) Ask(ctx context.Context, query string, opts ...AskOption) (*Answer, error) {
	o := askOptions{k: e.cfg.Retrieval.TopK, minScore: e.cfg.Retrieval.MinScore}
	for _, opt := range opts {
		opt(&o)
	}
	if o.minScore < 0 || o.minScore > 1 || math.IsNaN(o.minScore) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidMinScore, o.minScore)
	}

	retr, err := e.retriever(ctx, o.k)
	if err != nil {
		return nil, err
	}

	results, err := retr.SearchWithFloor(ctx, query, o.k, float32(o.minScore))
	var low *retrieval.LowConfidenceError
	if errors.As(err, &low) {
		e.log.Info("no matching context", "best", low.BestScore, "floor", low.Floor)
		return newAnswer(query, e.cfg.Retrieval.NoContextAnswer, low.Results, true), nil
	}
	if err != nil {
		return nil, err
	}

	gen, err := e.gen()
	if err != nil {
		return nil, err
	}
	text, err := e.query.Assemble(e.cfg.Retrieval.Persona, results, query)
	if err != nil {
		return nil, err
	}
	e.log.Debug("prompt assembled", "chars", len(text))

	reply, err := gen.Generate(ctx, text, llm.WithMaxTokens(e.cfg.Retrieval.MaxTokens))
	if err != nil {
		return nil, err
	}
	return newAnswer(query, reply, results, false), nil
}

// newAnswer keeps ids and scores of every hit; chunk text only travels
// with an answer that was actually grounded on it.
func newAnswer(query, text string, results []retrieval.Result, noContext bool) *Answer {
	a := &Answer{
		Query:     query,
		Text:      text,
		NoContext: noContext,
		BestScore: retrieval.BestScore(results),
		Sources:   make([]Source, len(results)),
	}
	for i, r := range results {
		a.Sources[i] = Source{ID: r.Chunk.ID(), Score: r.Score}
		if !noContext {
			a.Sources[i].Text = r.Chunk.Text
		}
	}
	if !noContext {
		a.Results = results
	}
	return a
}

// Context renders the sources the way the model saw them. It is empty for
// a no-context answer.
func (a *Answer) Context() string {
	return prompt.FormatContext(a.Results)
}
