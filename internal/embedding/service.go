// Package embedding turns text into vectors through a configured provider.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/DreamCats/briefly/internal/config"
	"github.com/DreamCats/briefly/internal/logger"
	"github.com/DreamCats/briefly/internal/resilience"
)

// Service provides embedding generation functionality
type Service struct {
	cfg    *config.EmbeddingConfig
	client Client
	policy resilience.Policy
	cache  *lru.Cache[string, []float32]
	log    logger.Logger
}

// Client is the interface for embedding API clients
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector size, 0 while unknown.
	Dimensions() int
}

// Option customizes a Service.
type Option func(*Service)

// WithClient injects a client instead of building one from the provider name.
func WithClient(c Client) Option {
	return func(s *Service) { s.client = c }
}

// WithPolicy sets the retry/timeout policy applied to every client call.
func WithPolicy(p resilience.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = logger.OrNop(l) }
}

// NewService creates a new embedding service
func NewService(cfg *config.EmbeddingConfig, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("embedding config is required")
	}
	svc := &Service{
		cfg:    cfg,
		policy: resilience.Policy{Attempts: 1, Timeout: cfg.Timeout},
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(svc)
	}

	if svc.client == nil {
		var (
			client Client
			err    error
		)
		switch cfg.Provider {
		case "openai":
			client, err = NewOpenAIClient(cfg)
		case "ollama":
			client, err = NewOllamaClient(cfg)
		default:
			return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		svc.client = client
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("init query cache: %w", err)
		}
		svc.cache = cache
	}
	return svc, nil
}

// Provider returns the configured provider name.
func (s *Service) Provider() string { return s.cfg.Provider }

// Model returns the configured model name.
func (s *Service) Model() string { return s.cfg.Model }

// Embed generates an embedding for a single query text. Results are cached
// by text when a cache size is configured.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, s.wrap(errors.New("cannot embed empty text"))
	}
	key := cacheKey(text)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return cloneVector(v), nil
		}
	}

	var vector []float32
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		vector, callErr = s.client.Embed(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	if err := s.checkVector(vector); err != nil {
		return nil, s.wrap(err)
	}

	if s.cache != nil {
		s.cache.Add(key, cloneVector(vector))
	}
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts, preserving order.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, s.wrap(fmt.Errorf("cannot embed empty text at index %d", i))
		}
	}

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]
		var embeddings [][]float32
		err := s.policy.Do(ctx, func(ctx context.Context) error {
			var callErr error
			embeddings, callErr = s.client.EmbedBatch(ctx, batch)
			return callErr
		})
		if err != nil {
			return nil, s.wrap(fmt.Errorf("batch %d-%d: %w", i, end, err))
		}
		if len(embeddings) != len(batch) {
			return nil, s.wrap(fmt.Errorf("batch %d-%d: expected %d embeddings, got %d", i, end, len(batch), len(embeddings)))
		}
		for _, emb := range embeddings {
			if err := s.checkVector(emb); err != nil {
				return nil, s.wrap(fmt.Errorf("batch %d-%d: %w", i, end, err))
			}
		}
		results = append(results, embeddings...)
		s.log.Debug("embedded batch", "from", i, "to", end)
	}

	return results, nil
}

// Dimensions returns the configured dimension, or the one the client has
// observed so far.
func (s *Service) Dimensions() int {
	if s.cfg.Dimensions > 0 {
		return s.cfg.Dimensions
	}
	return s.client.Dimensions()
}

func (s *Service) checkVector(v []float32) error {
	if len(v) == 0 {
		return errors.New("empty embedding returned")
	}
	if s.cfg.Dimensions > 0 && len(v) != s.cfg.Dimensions {
		return fmt.Errorf("embedding dimension %d, configured %d", len(v), s.cfg.Dimensions)
	}
	return nil
}

func (s *Service) wrap(err error) error {
	var embErr *Error
	if errors.As(err, &embErr) {
		return err
	}
	return &Error{Provider: s.cfg.Provider, Model: s.cfg.Model, Err: err}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	if src == nil {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}

// Similarity computes cosine similarity between two vectors
func Similarity(a, b []float32) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// Relevance maps cosine similarity onto [0, 1]; opposed vectors score 0.
func Relevance(a, b []float32) float32 {
	sim := Similarity(a, b)
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	default:
		return sim
	}
}
