package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/DreamCats/briefly/internal/config"
	"github.com/DreamCats/briefly/internal/resilience"
)

// OpenAIClient implements Client for any OpenAI-compatible /embeddings
// endpoint (OpenAI, OpenRouter, Ollama's /v1, LM Studio).
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	reqDims int
	dims    atomic.Int32
	client  *http.Client
}

// OpenAIEmbeddingRequest is the request format for OpenAI API
type OpenAIEmbeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// OpenAIEmbeddingResponse is the response from OpenAI API
type OpenAIEmbeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
		Object    string    `json:"object"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`

	// Ollama-native shapes, returned by some proxies.
	Embedding  []float32   `json:"embedding,omitempty"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
}

// NewOpenAIClient creates a new OpenAI-compatible embedding client. The API
// key is optional so local servers work without one.
func NewOpenAIClient(cfg *config.EmbeddingConfig) (*OpenAIClient, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	c := &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		reqDims: cfg.Dimensions,
		client:  &http.Client{}, // deadlines come from the caller's context
	}
	c.dims.Store(int32(cfg.Dimensions)) // #nosec G115 -- validated non-negative
	return c, nil
}

// Embed generates an embedding for a single text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := OpenAIEmbeddingRequest{
		Input:      texts,
		Model:      c.model,
		Dimensions: c.reqDims,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		if isPermanentStatus(resp.StatusCode) {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}

	var apiResp OpenAIEmbeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	embeddings, err := apiResp.vectors(len(texts))
	if err != nil {
		return nil, err
	}
	if len(embeddings) > 0 && c.dims.Load() == 0 {
		c.dims.CompareAndSwap(0, int32(len(embeddings[0]))) // #nosec G115 -- vector length
	}
	return embeddings, nil
}

func (r *OpenAIEmbeddingResponse) vectors(n int) ([][]float32, error) {
	switch {
	case len(r.Data) > 0:
		if len(r.Data) != n {
			return nil, fmt.Errorf("expected %d embeddings, got %d", n, len(r.Data))
		}
		embeddings := make([][]float32, n)
		for _, data := range r.Data {
			if data.Index < 0 || data.Index >= n {
				return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
			}
			embeddings[data.Index] = data.Embedding
		}
		return embeddings, nil
	case len(r.Embeddings) > 0:
		if len(r.Embeddings) != n {
			return nil, fmt.Errorf("expected %d embeddings, got %d", n, len(r.Embeddings))
		}
		return r.Embeddings, nil
	case len(r.Embedding) > 0 && n == 1:
		return [][]float32{r.Embedding}, nil
	default:
		return nil, fmt.Errorf("no embedding returned")
	}
}

// Dimensions returns the configured dimension or the size of the first
// vector received.
func (c *OpenAIClient) Dimensions() int {
	return int(c.dims.Load())
}

func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}
