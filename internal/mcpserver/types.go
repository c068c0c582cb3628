package mcpserver

import (
	"github.com/DreamCats/briefly/internal/extract"
	"github.com/DreamCats/briefly/internal/pipeline"
)

// AskInput defines inputs for the briefly_ask MCP tool.
type AskInput struct {
	Question string   `json:"question" jsonschema:"question to answer from the indexed documents"`
	TopK     int      `json:"top_k,omitempty" jsonschema:"number of chunks to retrieve"`
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"relevance floor in [0,1]; 0 disables"`
}

// AskOutput is the output for briefly_ask.
type AskOutput struct {
	Answer    string            `json:"answer"`
	NoContext bool              `json:"no_context"`
	BestScore float32           `json:"best_score"`
	Sources   []pipeline.Source `json:"sources"`
}

// ExtractInput defines inputs for the briefly_extract MCP tool.
type ExtractInput struct {
	Fields  []string `json:"fields,omitempty" jsonschema:"names of the configured fields to extract (default all)"`
	Workers int      `json:"workers,omitempty" jsonschema:"fields processed concurrently"`
}

// FieldOutput is one extracted field.
type FieldOutput struct {
	Name      string  `json:"name"`
	Answer    string  `json:"answer,omitempty"`
	Error     string  `json:"error,omitempty"`
	NoContext bool    `json:"no_context,omitempty"`
	BestScore float32 `json:"best_score"`
}

// ExtractOutput is the output for briefly_extract.
type ExtractOutput struct {
	Fields []FieldOutput `json:"fields"`
	Failed int           `json:"failed"`
}

// StatusInput takes no arguments.
type StatusInput struct{}

// StatusOutput is the output for briefly_status.
type StatusOutput struct {
	Collection string `json:"collection"`
	Built      bool   `json:"built"`
	Entries    int    `json:"entries"`
	Embedding  string `json:"embedding"`
	Path       string `json:"path"`
}

func toExtractOutput(r *extract.Report) ExtractOutput {
	out := ExtractOutput{Fields: make([]FieldOutput, len(r.Fields)), Failed: r.Failed()}
	for i, f := range r.Fields {
		out.Fields[i] = FieldOutput{
			Name:      f.Name,
			Answer:    f.Answer,
			NoContext: f.NoContext,
			BestScore: f.BestScore,
		}
		if f.Err != nil {
			out.Fields[i].Error = f.Err.Error()
		}
	}
	return out
}
