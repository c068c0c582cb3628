package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/DreamCats/briefly/internal/config"
)

// LangChainClient adapts a langchaingo embedder to Client.
type LangChainClient struct {
	impl embeddings.Embedder
	dims atomic.Int32
}

// NewOllamaClient embeds through a local Ollama server.
func NewOllamaClient(cfg *config.EmbeddingConfig) (*LangChainClient, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return WrapEmbedder(impl, cfg.Dimensions), nil
}

// WrapEmbedder wraps an existing langchaingo embedder. dims may be 0 when
// the size is learned from the first response.
func WrapEmbedder(impl embeddings.Embedder, dims int) *LangChainClient {
	c := &LangChainClient{impl: impl}
	c.dims.Store(int32(dims)) // #nosec G115 -- validated non-negative
	return c
}

// Embed embeds a query text.
func (c *LangChainClient) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, errors.New("no embedding returned")
	}
	c.observe(v)
	return v, nil
}

// EmbedBatch embeds document texts in order.
func (c *LangChainClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vs, err := c.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vs) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vs))
	}
	if len(vs) > 0 {
		c.observe(vs[0])
	}
	return vs, nil
}

// Dimensions returns the known vector size.
func (c *LangChainClient) Dimensions() int {
	return int(c.dims.Load())
}

func (c *LangChainClient) observe(v []float32) {
	if c.dims.Load() == 0 {
		c.dims.CompareAndSwap(0, int32(len(v))) // #nosec G115 -- vector length
	}
}
