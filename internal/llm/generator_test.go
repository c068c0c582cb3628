package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/DreamCats/briefly/internal/config"
	"github.com/DreamCats/briefly/internal/resilience"
)

type scriptedClient struct {
	replies []string
	errs    []error
	calls   int
	last    CallOptions
}

func (s *scriptedClient) Complete(_ context.Context, _ string, opts CallOptions) (string, error) {
	i := s.calls
	s.calls++
	s.last = opts
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", nil
}

func newTestService(t *testing.T, c Client) *Service {
	t.Helper()
	svc, err := NewService(
		&config.GenerationConfig{Provider: "openai", Model: "llama", MaxTokens: 512, Temperature: 0.2},
		WithClient(c),
		WithPolicy(resilience.Policy{Attempts: 2, Backoff: time.Millisecond}),
	)
	require.NoError(t, err)
	return svc
}

func TestGenerateAppliesOptions(t *testing.T) {
	c := &scriptedClient{replies: []string{"  Jane Roe \n"}}
	svc := newTestService(t, c)

	out, err := svc.Generate(context.Background(), "who?", WithMaxTokens(150))
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", out)
	assert.Equal(t, 150, c.last.MaxTokens)
	assert.Equal(t, 0.2, c.last.Temperature)
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	c := &scriptedClient{errs: []error{errors.New("502")}, replies: []string{"", "answer"}}
	out, err := newTestService(t, c).Generate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, 2, c.calls)
}

func TestGenerateWrapsFailures(t *testing.T) {
	boom := errors.New("quota exceeded")
	tests := []struct {
		name   string
		client *scriptedClient
		is     error
	}{
		{"provider error", &scriptedClient{errs: []error{boom, boom}}, boom},
		{"empty completion", &scriptedClient{replies: []string{" ", ""}}, nil},
		{"permanent error", &scriptedClient{errs: []error{resilience.Permanent(boom)}}, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestService(t, tt.client).Generate(context.Background(), "q")
			var genErr *GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, "openai", genErr.Provider)
			assert.Equal(t, "llama", genErr.Model)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestNewServiceUnknownProvider(t *testing.T) {
	_, err := NewService(&config.GenerationConfig{Provider: "volcengine"})
	assert.Error(t, err)
}

type stubModel struct {
	got  []llms.MessageContent
	opts llms.CallOptions
	resp *llms.ContentResponse
	err  error
}

func (m *stubModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.got = msgs
	for _, o := range options {
		o(&m.opts)
	}
	return m.resp, m.err
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangChainClientComplete(t *testing.T) {
	m := &stubModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Acme Corp"}}}}
	out, err := WrapModel(m).Complete(context.Background(), "defendant?", CallOptions{MaxTokens: 64, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", out)

	require.Len(t, m.got, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.got[0].Role)
	assert.Equal(t, 64, m.opts.MaxTokens)
	assert.Equal(t, 0.1, m.opts.Temperature)
}

func TestLangChainClientNoChoices(t *testing.T) {
	_, err := WrapModel(&stubModel{resp: &llms.ContentResponse{}}).Complete(context.Background(), "q", CallOptions{})
	assert.Error(t, err)
}
