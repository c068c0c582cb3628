package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DreamCats/briefly/internal/llm"
	"github.com/DreamCats/briefly/internal/logger"
	"github.com/DreamCats/briefly/internal/prompt"
	"github.com/DreamCats/briefly/internal/retrieval"
)

// Searcher retrieves context for one instruction.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Result, error)
}

// FieldResult is the outcome for one field. A failed field has Err set and
// an empty Answer; it never carries a made-up answer.
type FieldResult struct {
	Name      string
	Answer    string
	Err       error
	Context   string  // the context block sent to the model, empty when NoContext
	BestScore float32 // top retrieval score
	NoContext bool    // answered with the no-context reply without calling the model
}

// Failed reports whether the field has an error marker.
func (f FieldResult) Failed() bool { return f.Err != nil }

// MarshalJSON renders Err as a string.
func (f FieldResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Name      string  `json:"name"`
		Answer    string  `json:"answer,omitempty"`
		Error     string  `json:"error,omitempty"`
		BestScore float32 `json:"best_score"`
		NoContext bool    `json:"no_context,omitempty"`
		Context   string  `json:"context,omitempty"`
	}{
		Name:      f.Name,
		Answer:    f.Answer,
		BestScore: f.BestScore,
		NoContext: f.NoContext,
		Context:   f.Context,
	}
	if f.Err != nil {
		out.Error = f.Err.Error()
	}
	return json.Marshal(out)
}

// Report holds one FieldResult per spec field, in spec order.
type Report struct {
	Fields   []FieldResult `json:"fields"`
	Duration time.Duration `json:"duration_ns"`
}

// Failed counts fields with an error marker.
func (r *Report) Failed() int {
	n := 0
	for _, f := range r.Fields {
		if f.Failed() {
			n++
		}
	}
	return n
}

// Field returns the result for name.
func (r *Report) Field(name string) (FieldResult, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldResult{}, false
}

// Options configure an Orchestrator.
type Options struct {
	Persona string
	TopK    int
	// MinScore > 0 answers NoContextAnswer, without generation, when the
	// best retrieval score is below it.
	MinScore        float32
	NoContextAnswer string
	// Workers bounds concurrently processed fields; 1 is sequential.
	Workers     int
	CallOptions []llm.CallOption
	Logger      logger.Logger
}

// Orchestrator answers a FieldSpec against one index.
type Orchestrator struct {
	searcher  Searcher
	generator llm.Generator
	assembler *prompt.Assembler
	opts      Options
	log       logger.Logger
}

// New creates an orchestrator.
func New(searcher Searcher, generator llm.Generator, assembler *prompt.Assembler, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.NoContextAnswer == "" {
		opts.NoContextAnswer = "Unknown"
	}
	return &Orchestrator{
		searcher:  searcher,
		generator: generator,
		assembler: assembler,
		opts:      opts,
		log:       logger.OrNop(opts.Logger),
	}
}

// Run processes every field independently. A field's failure is recorded on
// that field and never stops the others. The returned error is non-nil only
// for an invalid spec or a cancelled context; the report is still returned
// in the latter case.
func (o *Orchestrator) Run(ctx context.Context, spec FieldSpec) (*Report, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	report := &Report{Fields: make([]FieldResult, len(spec))}

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i, field := range spec {
		g.Go(func() error {
			report.Fields[i] = o.runField(ctx, field)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	o.log.Info("extraction finished",
		"fields", len(spec), "failed", report.Failed(), "duration", report.Duration.Round(time.Millisecond))
	return report, ctx.Err()
}

func (o *Orchestrator) runField(ctx context.Context, field Field) FieldResult {
	res := FieldResult{Name: field.Name}
	log := o.log.With("field", field.Name)

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	results, err := o.searcher.Search(ctx, field.Instruction, o.opts.TopK)
	if err != nil {
		res.Err = fmt.Errorf("retrieve: %w", err)
		log.Warn("field failed", "stage", "retrieve", "error", err)
		return res
	}
	res.BestScore = retrieval.BestScore(results)

	// Chunks below the floor are not usable context and are not reported.
	if len(results) == 0 || (o.opts.MinScore > 0 && res.BestScore < o.opts.MinScore) {
		res.Answer = o.opts.NoContextAnswer
		res.NoContext = true
		log.Info("no relevant context", "best", res.BestScore, "floor", o.opts.MinScore)
		return res
	}
	res.Context = prompt.FormatContext(results)

	text, err := o.assembler.Render(prompt.Data{
		Persona:  o.opts.Persona,
		Context:  res.Context,
		Question: field.Instruction,
	})
	if err != nil {
		res.Err = fmt.Errorf("assemble: %w", err)
		return res
	}

	answer, err := o.generator.Generate(ctx, text, o.opts.CallOptions...)
	if err != nil {
		res.Err = err
		log.Warn("field failed", "stage", "generate", "error", err)
		return res
	}
	res.Answer = answer
	log.Debug("field answered", "best", res.BestScore)
	return res
}
