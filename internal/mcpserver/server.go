// Package mcpserver exposes question answering and field extraction over
// MCP stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DreamCats/briefly/internal/extract"
	"github.com/DreamCats/briefly/internal/logger"
	"github.com/DreamCats/briefly/internal/pipeline"
)

// Engine is the part of pipeline.Engine the tools call.
type Engine interface {
	Ask(ctx context.Context, query string, opts ...pipeline.AskOption) (*pipeline.Answer, error)
	Extract(ctx context.Context, spec extract.FieldSpec, opts ...pipeline.ExtractOption) (*extract.Report, error)
	FieldSpec() (extract.FieldSpec, error)
	Stats(ctx context.Context) (*pipeline.Stats, error)
}

// Server exposes briefly tools via MCP stdio.
type Server struct {
	engine  Engine
	version string
	log     logger.Logger
}

// New creates a new MCP server wrapper.
func New(engine Engine, version string, log logger.Logger) *Server {
	return &Server{engine: engine, version: version, log: logger.OrNop(log)}
}

// Run starts the MCP stdio server and blocks until ctx ends or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server().Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) server() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "briefly",
		Title:   "Briefly",
		Version: s.version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "briefly_ask",
		Description: `Answer a question using only the indexed case documents.

Returns the answer with the chunk ids it was grounded on. When no chunk is
relevant enough, no_context is true and the model was not consulted.`,
	}, s.askTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "briefly_extract",
		Description: `Extract the configured case fields (plaintiff, dates, injuries, ...) from
the indexed documents. Each field is answered independently; a failed field
carries an error instead of an answer.`,
	}, s.extractTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "briefly_status",
		Description: "Report whether the collection is built, its entry count and embedding model.",
	}, s.statusTool)

	return server
}

func (s *Server) askTool(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, AskOutput{}, errors.New("question is required")
	}
	var opts []pipeline.AskOption
	if input.TopK > 0 {
		opts = append(opts, pipeline.WithK(input.TopK))
	}
	if input.MinScore != nil {
		if f := *input.MinScore; f < 0 || f > 1 {
			return nil, AskOutput{}, fmt.Errorf("min_score %v is outside [0, 1]", f)
		}
		opts = append(opts, pipeline.WithMinScore(*input.MinScore))
	}

	ans, err := s.engine.Ask(ctx, input.Question, opts...)
	if err != nil {
		s.log.Warn("briefly_ask failed", "error", err)
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{
		Answer:    ans.Text,
		NoContext: ans.NoContext,
		BestScore: ans.BestScore,
		Sources:   ans.Sources,
	}, nil
}

func (s *Server) extractTool(ctx context.Context, _ *mcp.CallToolRequest, input ExtractInput) (*mcp.CallToolResult, ExtractOutput, error) {
	spec, err := s.engine.FieldSpec()
	if err != nil {
		return nil, ExtractOutput{}, err
	}
	if spec, err = spec.Select(input.Fields); err != nil {
		return nil, ExtractOutput{}, err
	}

	report, err := s.engine.Extract(ctx, spec, pipeline.WithWorkers(input.Workers))
	if err != nil {
		s.log.Warn("briefly_extract failed", "error", err)
		return nil, ExtractOutput{}, err
	}
	return nil, toExtractOutput(report), nil
}

func (s *Server) statusTool(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	st, err := s.engine.Stats(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{
		Collection: st.Collection,
		Built:      st.Built,
		Entries:    st.Entries,
		Embedding:  st.Binding.String(),
		Path:       st.Path,
	}, nil
}
