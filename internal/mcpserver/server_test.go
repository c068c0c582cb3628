package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/briefly/internal/chunk"
	"github.com/DreamCats/briefly/internal/config"
	"github.com/DreamCats/briefly/internal/extract"
	"github.com/DreamCats/briefly/internal/llm"
	"github.com/DreamCats/briefly/internal/pipeline"
	"github.com/DreamCats/briefly/internal/store"
)

type fakeEngine struct {
	askOpts  int
	lastSpec extract.FieldSpec
}

func (f *fakeEngine) Ask(_ context.Context, q string, opts ...pipeline.AskOption) (*pipeline.Answer, error) {
	f.askOpts = len(opts)
	return &pipeline.Answer{
		Query:     q,
		Text:      "Jane Roe",
		BestScore: 0.91,
		Sources:   []pipeline.Source{{ID: "a.pdf:0:0", Score: 0.91, Text: "Plaintiff Jane Roe"}},
	}, nil
}

func (f *fakeEngine) Extract(_ context.Context, spec extract.FieldSpec, _ ...pipeline.ExtractOption) (*extract.Report, error) {
	f.lastSpec = spec
	r := &extract.Report{}
	for _, fld := range spec {
		res := extract.FieldResult{Name: fld.Name, Answer: "x", BestScore: 0.8}
		if fld.Name == "DOB" {
			res = extract.FieldResult{Name: fld.Name, Err: errors.New("timeout")}
		}
		r.Fields = append(r.Fields, res)
	}
	return r, nil
}

func (f *fakeEngine) FieldSpec() (extract.FieldSpec, error) {
	return extract.DefaultFieldSpec(), nil
}

func (f *fakeEngine) Stats(context.Context) (*pipeline.Stats, error) {
	return &pipeline.Stats{
		Path:       "/tmp/briefly.db",
		Collection: "documents",
		Built:      true,
		Entries:    42,
		Binding:    store.Binding{Provider: "ollama", Model: "all-minilm", Dimension: 384},
	}, nil
}

func TestAskTool(t *testing.T) {
	eng := &fakeEngine{}
	s := New(eng, "test", nil)

	floor := 0.0
	_, out, err := s.askTool(context.Background(), nil, AskInput{Question: "Who?", TopK: 5, MinScore: &floor})
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", out.Answer)
	assert.Equal(t, "a.pdf:0:0", out.Sources[0].ID)
	assert.Equal(t, 2, eng.askOpts)

	_, _, err = s.askTool(context.Background(), nil, AskInput{Question: "  "})
	assert.Error(t, err)

	for _, f := range []float64{-0.5, 1.01} {
		eng.askOpts = -1
		_, _, err = s.askTool(context.Background(), nil, AskInput{Question: "Who?", MinScore: &f})
		assert.Error(t, err)
		assert.Equal(t, -1, eng.askOpts, "engine not called for %v", f)
	}
}

type keywordEmbedder struct{}

func (keywordEmbedder) vector(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "plaintiff") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

func (k keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return k.vector(text), nil
}

func (k keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

type oneDocLoader struct{}

func (oneDocLoader) Load(context.Context, string) ([]chunk.Document, error) {
	return []chunk.Document{{Source: "a.pdf", Text: "Plaintiff Jane Roe, confidential"}}, nil
}

type unusedGenerator struct{}

func (unusedGenerator) Generate(context.Context, string, ...llm.CallOption) (string, error) {
	return "", errors.New("generator must not be called")
}

func TestAskToolNoContextHidesChunkText(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Store.Path = filepath.Join(t.TempDir(), "briefly.db")

	eng, err := pipeline.New(cfg,
		pipeline.WithEmbedder(keywordEmbedder{}),
		pipeline.WithLoader(oneDocLoader{}),
		pipeline.WithGenerator(unusedGenerator{}),
	)
	require.NoError(t, err)
	defer eng.Close()
	_, err = eng.BuildIndex(context.Background(), "docs")
	require.NoError(t, err)

	_, out, err := New(eng, "test", nil).askTool(context.Background(), nil, AskInput{Question: "What was the weather?"})
	require.NoError(t, err)
	assert.True(t, out.NoContext)
	assert.Equal(t, config.DefaultNoContextAnswer, out.Answer)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "confidential")
}

func TestExtractTool(t *testing.T) {
	eng := &fakeEngine{}
	s := New(eng, "test", nil)

	_, out, err := s.extractTool(context.Background(), nil, ExtractInput{Fields: []string{"DOB", "Plaintiff"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Plaintiff", "DOB"}, eng.lastSpec.Names())
	require.Len(t, out.Fields, 2)
	assert.Equal(t, "x", out.Fields[0].Answer)
	assert.Equal(t, "timeout", out.Fields[1].Error)
	assert.Equal(t, 1, out.Failed)

	_, _, err = s.extractTool(context.Background(), nil, ExtractInput{Fields: []string{"Nope"}})
	assert.Error(t, err)
}

func TestStatusTool(t *testing.T) {
	s := New(&fakeEngine{}, "test", nil)
	_, out, err := s.statusTool(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Built)
	assert.Equal(t, 42, out.Entries)
	assert.Equal(t, "ollama/all-minilm (dim 384)", out.Embedding)
}

func TestServerRegistersTools(t *testing.T) {
	assert.NotNil(t, New(&fakeEngine{}, "test", nil).server())
}
