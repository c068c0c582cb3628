package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/briefly/internal/chunk"
	"github.com/DreamCats/briefly/internal/retrieval"
)

func result(id, text string, score float32) retrieval.Result {
	return retrieval.Result{
		Chunk: chunk.Chunk{Text: text, Metadata: chunk.Metadata{ChunkID: id}},
		Score: score,
	}
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]retrieval.Result{
		result("b.pdf:0:1", "second by id, first by score", 0.9),
		result("a.pdf:0:0", "Plaintiff: Jane Roe", 0.8),
	})
	want := "[ID: b.pdf:0:1]\nsecond by id, first by score" +
		"\n\n---\n\n" +
		"[ID: a.pdf:0:0]\nPlaintiff: Jane Roe"
	assert.Equal(t, want, got)
	assert.Empty(t, FormatContext(nil))
}

func TestRenderSubstitutesVerbatim(t *testing.T) {
	a, err := New("t", "P={{ .Persona }}|C={{ .Context }}|Q={{ .Question }}")
	require.NoError(t, err)

	ctx := "{{ not a template }} <b>&amp;</b>"
	out, err := a.Render(Data{Persona: "legal", Context: ctx, Question: "DOB?"})
	require.NoError(t, err)
	assert.Equal(t, "P=legal|C="+ctx+"|Q=DOB?", out)
}

func TestDefaultTemplates(t *testing.T) {
	results := []retrieval.Result{result("intake.pdf:0:0", "Jane Roe, born 1981-04-02", 0.91)}
	for name, text := range map[string]string{"query": QueryTemplate, "extraction": ExtractionTemplate} {
		t.Run(name, func(t *testing.T) {
			a, err := New(name, text)
			require.NoError(t, err)
			out, err := a.Assemble("Answer only from the context.", results, "  What is the plaintiff's date of birth?\n")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, "Answer only from the context."))
			assert.Contains(t, out, "[ID: intake.pdf:0:0]\nJane Roe, born 1981-04-02")
			assert.Contains(t, out, "What is the plaintiff's date of birth?")
			assert.NotContains(t, out, "birth?\n")
		})
	}
}

func TestNewRequiresPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no context", "{{ .Persona }} {{ .Question }}"},
		{"no question", "{{ .Context }}"},
		{"syntax error", "{{ .Context "},
		{"unknown field", "{{ .Context }} {{ .Question }} {{ .Nope }}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.name, tt.text)
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	a, err := Load("", QueryTemplate)
	require.NoError(t, err)
	out, err := a.Render(Data{Context: "ctx", Question: "q"})
	require.NoError(t, err)
	assert.Contains(t, out, "The data:\nctx")

	path := filepath.Join(t.TempDir(), "custom.tmpl")
	require.NoError(t, os.WriteFile(path, []byte(`{{ .Question | upper }}: {{ .Context }}`), 0644))
	a, err = Load(path, QueryTemplate)
	require.NoError(t, err)
	out, err = a.Render(Data{Context: "ctx", Question: "dob"})
	require.NoError(t, err)
	assert.Equal(t, "DOB: ctx", out)

	_, err = Load(filepath.Join(t.TempDir(), "missing.tmpl"), QueryTemplate)
	assert.Error(t, err)
}
