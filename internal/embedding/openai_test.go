package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/briefly/internal/config"
	"github.com/DreamCats/briefly/internal/resilience"
)

func TestOpenAIClientEmbedBatch(t *testing.T) {
	var got OpenAIEmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		// Out of order on purpose: index decides placement.
		_, _ = w.Write([]byte(`{"data":[
			{"embedding":[0,1,0],"index":1},
			{"embedding":[1,0,0],"index":0}
		]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&config.EmbeddingConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Dimensions())

	vs, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vs)
	assert.Equal(t, []string{"first", "second"}, got.Input)
	assert.Equal(t, "text-embedding-3-small", got.Model)
	assert.Zero(t, got.Dimensions)
	assert.Equal(t, 3, c.Dimensions())
}

func TestOpenAIClientOllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.5]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&config.EmbeddingConfig{BaseURL: srv.URL, Model: "all-minilm"})
	require.NoError(t, err)
	v, err := c.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, v)
}

func TestOpenAIClientStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"bad request", http.StatusBadRequest, true},
		{"rate limited", http.StatusTooManyRequests, false},
		{"server error", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c, err := NewOpenAIClient(&config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
			require.NoError(t, err)
			_, err = c.EmbedBatch(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, resilience.IsPermanent(err))
		})
	}
}

func TestOpenAIClientCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1],"index":0}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	_, err = c.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "expected 2 embeddings")
}
