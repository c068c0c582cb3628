package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/briefly/internal/config"
	"github.com/DreamCats/briefly/internal/resilience"
)

func TestOpenAIClientComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"March 3, 2023"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&config.GenerationConfig{APIKey: "or-key", BaseURL: srv.URL + "/api/v1", Model: "meta-llama/llama-3.3-70b-instruct"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "When did it happen?", CallOptions{MaxTokens: 150})
	require.NoError(t, err)
	assert.Equal(t, "March 3, 2023", out)
	assert.Equal(t, "meta-llama/llama-3.3-70b-instruct", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "When did it happen?", got.Messages[0].Content)
	assert.Equal(t, 150, got.MaxTokens)
	assert.False(t, got.Stream)
}

func TestOpenAIClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Jane", " Roe"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&config.GenerationConfig{APIKey: "k", BaseURL: srv.URL, Model: "m", Stream: true})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "plaintiff?", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", out)
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, true},
		{"rate limited", http.StatusTooManyRequests, `slow down`, false},
		{"upstream", http.StatusBadGateway, `oops`, false},
		{"error body", http.StatusOK, `{"error":{"message":"model overloaded"}}`, false},
		{"no choices", http.StatusOK, `{"choices":[]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewOpenAIClient(&config.GenerationConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
			require.NoError(t, err)
			_, err = c.Complete(context.Background(), "q", CallOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, resilience.IsPermanent(err))
		})
	}
}

func TestNewOpenAIClientRequiresKeyForRemote(t *testing.T) {
	_, err := NewOpenAIClient(&config.GenerationConfig{BaseURL: "https://openrouter.ai/api/v1", Model: "m"})
	assert.Error(t, err)

	_, err = NewOpenAIClient(&config.GenerationConfig{BaseURL: "http://localhost:11434/v1", Model: "llama3"})
	assert.NoError(t, err)
}
