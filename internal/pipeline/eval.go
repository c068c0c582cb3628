package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DreamCats/briefly/internal/llm"
)

// EvalCase is one question with the response it should get.
type EvalCase struct {
	Question string `yaml:"question" json:"question"`
	Expected string `yaml:"expected" json:"expected"`
}

// EvalResult is the verdict for one case.
type EvalResult struct {
	EvalCase
	Actual string `json:"actual"`
	Passed bool   `json:"passed"`
	Err    error  `json:"-"`
	Error  string `json:"error,omitempty"`
}

// EvalReport collects verdicts in case order.
type EvalReport struct {
	Results  []EvalResult  `json:"results"`
	Duration time.Duration `json:"duration_ns"`
}

// Passed counts passing cases.
func (r *EvalReport) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed {
			n++
		}
	}
	return n
}

// ErrUndeterminedVerdict means the judge answered neither true nor false.
var ErrUndeterminedVerdict = errors.New("judge verdict is neither true nor false")

const judgeTemplate = `
Expected Response: %s
Actual Response: %s
---
(Answer with 'true' or 'false') Is the actual response close enough to the expected response?
`

// LoadEvalCases reads a YAML list of {question, expected}.
func LoadEvalCases(path string) ([]EvalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read eval cases: %w", err)
	}
	var cases []EvalCase
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parse eval cases: %w", err)
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Question) == "" || strings.TrimSpace(c.Expected) == "" {
			return nil, fmt.Errorf("eval case %d needs both question and expected", i)
		}
	}
	return cases, nil
}

// Evaluate asks every question and has the judge compare the answer with
// the expected response. Per-case failures are recorded on the case.
func (e *Engine) Evaluate(ctx context.Context, cases []EvalCase) (*EvalReport, error) {
	judge := e.judge
	if judge == nil {
		var err error
		if judge, err = e.gen(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	report := &EvalReport{Results: make([]EvalResult, len(cases))}
	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := EvalResult{EvalCase: c}
		res.Actual, res.Passed, res.Err = e.evaluate(ctx, judge, c)
		if res.Err != nil {
			res.Error = res.Err.Error()
			e.log.Warn("eval case failed", "question", c.Question, "error", res.Err)
		}
		report.Results[i] = res
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (e *Engine) evaluate(ctx context.Context, judge llm.Generator, c EvalCase) (string, bool, error) {
	answer, err := e.Ask(ctx, c.Question)
	if err != nil {
		return "", false, err
	}
	verdict, err := judge.Generate(ctx, fmt.Sprintf(judgeTemplate, c.Expected, answer.Text))
	if err != nil {
		return answer.Text, false, err
	}
	passed, err := parseVerdict(verdict)
	return answer.Text, passed, err
}

func parseVerdict(s string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(v, "true"):
		return true, nil
	case strings.Contains(v, "false"):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUndeterminedVerdict, s)
	}
}
