package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/briefly/internal/chunk"
	"github.com/DreamCats/briefly/internal/llm"
	"github.com/DreamCats/briefly/internal/prompt"
	"github.com/DreamCats/briefly/internal/retrieval"
)

type fakeSearcher struct {
	scores map[string]float32 // instruction -> best score
	err    map[string]error
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int) ([]retrieval.Result, error) {
	if err := f.err[query]; err != nil {
		return nil, err
	}
	score, ok := f.scores[query]
	if !ok {
		return []retrieval.Result{}, nil
	}
	return []retrieval.Result{{
		Chunk: chunk.Chunk{Text: "context for " + query, Metadata: chunk.Metadata{ChunkID: "doc.pdf:0:0"}},
		Score: score,
	}}, nil
}

// fakeGenerator answers "answer:<instruction>" and fails prompts containing
// a marker.
type fakeGenerator struct {
	failOn string
	delay  func(prompt string) time.Duration
	calls  atomic.Int32
	mu     sync.Mutex
	order  []string
}

func (g *fakeGenerator) Generate(ctx context.Context, p string, _ ...llm.CallOption) (string, error) {
	g.calls.Add(1)
	if g.delay != nil {
		select {
		case <-time.After(g.delay(p)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.failOn != "" && strings.Contains(p, g.failOn) {
		return "", &llm.GenerationError{Provider: "fake", Model: "m", Err: errors.New("backend down")}
	}
	idx := strings.Index(p, "Instruction: ")
	line := strings.SplitN(p[idx+len("Instruction: "):], "\n", 2)[0]
	g.mu.Lock()
	g.order = append(g.order, line)
	g.mu.Unlock()
	return "answer:" + line, nil
}

func newOrchestrator(t *testing.T, s Searcher, g llm.Generator, opts Options) *Orchestrator {
	t.Helper()
	a, err := prompt.New("extraction", prompt.ExtractionTemplate)
	require.NoError(t, err)
	opts.Persona = "Answer only from the context. Say Unknown otherwise."
	return New(s, g, a, opts)
}

var threeFields = FieldSpec{
	{Name: "Plaintiff", Instruction: "Who is the plaintiff?"},
	{Name: "DOB", Instruction: "What is the date of birth?"},
	{Name: "Injuries", Instruction: "What injuries?"},
}

func allScores(score float32) map[string]float32 {
	m := map[string]float32{}
	for _, f := range threeFields {
		m[f.Instruction] = score
	}
	return m
}

func TestRunIsolatesFailedField(t *testing.T) {
	gen := &fakeGenerator{failOn: "date of birth"}
	o := newOrchestrator(t, &fakeSearcher{scores: allScores(0.9)}, gen, Options{TopK: 3})

	report, err := o.Run(context.Background(), threeFields)
	require.NoError(t, err)
	require.Len(t, report.Fields, 3)
	assert.Equal(t, []string{"Plaintiff", "DOB", "Injuries"}, []string{
		report.Fields[0].Name, report.Fields[1].Name, report.Fields[2].Name,
	})

	assert.Equal(t, "answer:Who is the plaintiff?", report.Fields[0].Answer)
	assert.NoError(t, report.Fields[0].Err)

	dob := report.Fields[1]
	assert.True(t, dob.Failed())
	assert.Empty(t, dob.Answer)
	var genErr *llm.GenerationError
	assert.ErrorAs(t, dob.Err, &genErr)

	assert.Equal(t, "answer:What injuries?", report.Fields[2].Answer)
	assert.Equal(t, 1, report.Failed())
	assert.Contains(t, report.Fields[0].Context, "[ID: doc.pdf:0:0]\ncontext for Who is the plaintiff?")
}

func TestRunRetrievalFailureIsPerField(t *testing.T) {
	s := &fakeSearcher{
		scores: allScores(0.9),
		err:    map[string]error{"Who is the plaintiff?": errors.New("index unavailable")},
	}
	gen := &fakeGenerator{}
	report, err := newOrchestrator(t, s, gen, Options{}).Run(context.Background(), threeFields)
	require.NoError(t, err)

	assert.ErrorContains(t, report.Fields[0].Err, "index unavailable")
	assert.NotEmpty(t, report.Fields[1].Answer)
	assert.NotEmpty(t, report.Fields[2].Answer)
	assert.EqualValues(t, 2, gen.calls.Load())
}

func TestRunKeepsSpecOrderUnderConcurrency(t *testing.T) {
	// The first field finishes last.
	gen := &fakeGenerator{delay: func(p string) time.Duration {
		if strings.Contains(p, "plaintiff") {
			return 50 * time.Millisecond
		}
		return time.Millisecond
	}}
	o := newOrchestrator(t, &fakeSearcher{scores: allScores(0.9)}, gen, Options{Workers: 3})

	report, err := o.Run(context.Background(), threeFields)
	require.NoError(t, err)
	for i, f := range threeFields {
		assert.Equal(t, f.Name, report.Fields[i].Name)
		assert.Equal(t, "answer:"+f.Instruction, report.Fields[i].Answer)
	}
	assert.Equal(t, "Who is the plaintiff?", gen.order[len(gen.order)-1], "completion order differs from output order")
}

func TestRunBelowFloorSkipsGeneration(t *testing.T) {
	scores := allScores(0.9)
	scores["What injuries?"] = 0.3
	gen := &fakeGenerator{}
	o := newOrchestrator(t, &fakeSearcher{scores: scores}, gen, Options{MinScore: 0.7})

	report, err := o.Run(context.Background(), threeFields)
	require.NoError(t, err)

	injuries, ok := report.Field("Injuries")
	require.True(t, ok)
	assert.True(t, injuries.NoContext)
	assert.Equal(t, "Unknown", injuries.Answer)
	assert.NoError(t, injuries.Err)
	assert.InDelta(t, 0.3, injuries.BestScore, 1e-6)
	assert.Empty(t, injuries.Context, "low-score chunks are not passed on")
	assert.EqualValues(t, 2, gen.calls.Load())

	data, err := json.Marshal(injuries)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "context for What injuries?")
	assert.NotContains(t, string(data), `"context"`)

	plaintiff, _ := report.Field("Plaintiff")
	assert.NotEmpty(t, plaintiff.Context)
}

func TestRunEmptyResultsUseNoContextAnswer(t *testing.T) {
	gen := &fakeGenerator{}
	o := newOrchestrator(t, &fakeSearcher{}, gen, Options{NoContextAnswer: "Not found"})

	report, err := o.Run(context.Background(), threeFields)
	require.NoError(t, err)
	for _, f := range report.Fields {
		assert.Equal(t, "Not found", f.Answer)
		assert.True(t, f.NoContext)
	}
	assert.Zero(t, gen.calls.Load())
}

func TestRunRejectsInvalidSpec(t *testing.T) {
	o := newOrchestrator(t, &fakeSearcher{}, &fakeGenerator{}, Options{})
	_, err := o.Run(context.Background(), FieldSpec{{Name: "A", Instruction: "a"}, {Name: "A", Instruction: "b"}})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newOrchestrator(t, &fakeSearcher{scores: allScores(0.9)}, &fakeGenerator{}, Options{})

	report, err := o.Run(ctx, threeFields)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	for _, f := range report.Fields {
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
}

func TestFieldResultJSON(t *testing.T) {
	data, err := json.Marshal(FieldResult{Name: "DOB", Err: errors.New("backend down"), BestScore: 0.8})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"DOB","error":"backend down","best_score":0.8}`, string(data))
}
