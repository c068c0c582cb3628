// Package retrieval finds the chunks most relevant to a query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DreamCats/briefly/internal/chunk"
	"github.com/DreamCats/briefly/internal/logger"
	"github.com/DreamCats/briefly/internal/store"
)

// DefaultTopK is used when a caller passes k <= 0 and no default was configured.
const DefaultTopK = 3

// ErrLowConfidence signals that nothing relevant enough was found. It is a
// policy outcome, not a failure of the index.
var ErrLowConfidence = errors.New("no sufficiently relevant context")

// LowConfidenceError carries what was found when the floor was not met.
type LowConfidenceError struct {
	BestScore float32
	Floor     float32
	Results   []Result
}

func (e *LowConfidenceError) Error() string {
	if len(e.Results) == 0 {
		return fmt.Sprintf("%v: index returned no results", ErrLowConfidence)
	}
	return fmt.Sprintf("%v: best score %.3f below floor %.3f", ErrLowConfidence, e.BestScore, e.Floor)
}

func (e *LowConfidenceError) Unwrap() error { return ErrLowConfidence }

// Result is one retrieved chunk with its relevance in [0, 1].
type Result struct {
	Chunk chunk.Chunk
	Score float32
}

// QueryEmbedder embeds query text with the same function the index was
// built with.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the searchable side of a collection.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]store.ScoredEntry, error)
	Count(ctx context.Context) (int, error)
}

// Retriever runs nearest-neighbour search over one collection.
type Retriever struct {
	index    Index
	embedder QueryEmbedder
	topK     int
	log      logger.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK sets the k used when Search is called with k <= 0.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithLogger sets the retriever logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Retriever) { r.log = logger.OrNop(l) }
}

// New creates a retriever over index.
func New(index Index, embedder QueryEmbedder, opts ...Option) *Retriever {
	r := &Retriever{
		index:    index,
		embedder: embedder,
		topK:     DefaultTopK,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search returns at most k results ordered by score descending, ties by
// chunk id ascending. An empty index yields an empty result.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if k <= 0 {
		k = r.topK
	}

	n, err := r.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count index: %w", err)
	}
	if n == 0 {
		r.log.Debug("search on empty index", "query", query)
		return []Result{}, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Chunk: chunk.Chunk{Text: h.Text, Metadata: h.Metadata},
			Score: h.Score,
		})
	}
	r.log.Debug("search done", "query", query, "k", k, "results", len(results), "best", BestScore(results))
	return results, nil
}

// SearchWithFloor is Search plus a relevance check: when there are no
// results or the best score is below floor it returns a *LowConfidenceError
// (matching ErrLowConfidence) holding whatever was found.
func (r *Retriever) SearchWithFloor(ctx context.Context, query string, k int, floor float32) ([]Result, error) {
	results, err := r.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	best := BestScore(results)
	if len(results) == 0 || best < floor {
		return results, &LowConfidenceError{BestScore: best, Floor: floor, Results: results}
	}
	return results, nil
}

// BestScore returns the top score, 0 for no results.
func BestScore(results []Result) float32 {
	if len(results) == 0 {
		return 0
	}
	return results[0].Score
}
