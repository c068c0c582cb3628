// Package llm sends assembled prompts to a text-completion provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DreamCats/briefly/internal/config"
	"github.com/DreamCats/briefly/internal/logger"
	"github.com/DreamCats/briefly/internal/resilience"
)

// Generator turns one prompt into one completion.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...CallOption) (string, error)
}

// CallOptions tune a single completion.
type CallOptions struct {
	MaxTokens   int
	Temperature float64
}

// CallOption sets a CallOptions field.
type CallOption func(*CallOptions)

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) { o.Temperature = t }
}

// Client is implemented by provider back ends.
type Client interface {
	Complete(ctx context.Context, prompt string, opts CallOptions) (string, error)
}

// Service applies call options, retry and error wrapping around a Client.
type Service struct {
	cfg    *config.GenerationConfig
	client Client
	policy resilience.Policy
	log    logger.Logger
}

var _ Generator = (*Service)(nil)

// Option customizes a Service.
type Option func(*Service)

// WithClient injects a provider client.
func WithClient(c Client) Option {
	return func(s *Service) { s.client = c }
}

// WithPolicy sets the retry/timeout policy for each completion.
func WithPolicy(p resilience.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = logger.OrNop(l) }
}

// NewService builds the client named by cfg.Provider.
func NewService(cfg *config.GenerationConfig, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("generation config is required")
	}
	svc := &Service{
		cfg:    cfg,
		policy: resilience.Policy{Attempts: 1, Timeout: cfg.Timeout},
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.client != nil {
		return svc, nil
	}

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
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	svc.client = client
	return svc, nil
}

// Generate returns the completion for prompt. Every failure, including an
// empty completion, is a *GenerationError.
func (s *Service) Generate(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	o := CallOptions{MaxTokens: s.cfg.MaxTokens, Temperature: s.cfg.Temperature}
	for _, opt := range opts {
		opt(&o)
	}

	var text string
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		out, err := s.client.Complete(ctx, prompt, o)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return errors.New("empty completion")
		}
		text = out
		return nil
	})
	if err != nil {
		s.log.Warn("generation failed", "provider", s.cfg.Provider, "model", s.cfg.Model, "error", err)
		return "", &GenerationError{Provider: s.cfg.Provider, Model: s.cfg.Model, Err: err}
	}
	return strings.TrimSpace(text), nil
}
