package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"  True.\n", true, false},
		{"FALSE", false, false},
		{"The answer is false", false, false},
		{"maybe", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseVerdict(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUndeterminedVerdict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) (string, error) { return "Jane Roe", nil }}
	judge := &recordingGenerator{reply: func(p string) (string, error) {
		switch {
		case strings.Contains(p, "Expected Response: Jane Roe"):
			return "true", nil
		case strings.Contains(p, "Expected Response: John Doe"):
			return "false", nil
		default:
			return "cannot tell", nil
		}
	}}
	e := newTestEngine(t, testConfig(t), gen, WithJudge(judge))
	ctx := context.Background()
	_, err := e.BuildIndex(ctx, "docs")
	require.NoError(t, err)

	report, err := e.Evaluate(ctx, []EvalCase{
		{Question: "Who is in the fox report?", Expected: "Jane Roe"},
		{Question: "Who is in the fox report?", Expected: "John Doe"},
		{Question: "Who is in the fox report?", Expected: "Someone"},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	assert.True(t, report.Results[0].Passed)
	assert.Equal(t, "Jane Roe", report.Results[0].Actual)
	assert.False(t, report.Results[1].Passed)
	assert.NoError(t, report.Results[1].Err)
	assert.ErrorIs(t, report.Results[2].Err, ErrUndeterminedVerdict)
	assert.NotEmpty(t, report.Results[2].Error)
	assert.Equal(t, 1, report.Passed())

	assert.Contains(t, judge.prompts[0], "Actual Response: Jane Roe")
	assert.Contains(t, judge.prompts[0], "(Answer with 'true' or 'false')")
}

func TestLoadEvalCases(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "cases.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
- question: Who is the plaintiff?
  expected: Jane Roe
- question: When did it happen?
  expected: 2 March
`), 0644))
	cases, err := LoadEvalCases(good)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "2 March", cases[1].Expected)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- question: only a question\n"), 0644))
	_, err = LoadEvalCases(bad)
	assert.Error(t, err)
}
