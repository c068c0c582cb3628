package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/DreamCats/briefly/internal/config"
)

// LangChainClient adapts a langchaingo model to Client.
type LangChainClient struct {
	model llms.Model
}

// NewOllamaClient generates through a local Ollama server.
func NewOllamaClient(cfg *config.GenerationConfig) (*LangChainClient, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return WrapModel(model), nil
}

// WrapModel wraps any langchaingo model.
func WrapModel(m llms.Model) *LangChainClient {
	return &LangChainClient{model: m}
}

// Complete sends prompt as a single human message.
func (c *LangChainClient) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, callOpts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Content, nil
}
