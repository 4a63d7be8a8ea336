package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/lore/internal/knowledge"
	"github.com/koopa0/lore/internal/rag"
	"github.com/koopa0/lore/internal/retrieval"
)

// RetrieveContextInput defines the retrieve_context tool input.
type RetrieveContextInput struct {
	Base  string `json:"base" jsonschema:"Knowledge base name to query"`
	Query string `json:"query" jsonschema:"The question to ground with retrieved context"`
}

// ReindexBaseInput defines the reindex_base tool input.
type ReindexBaseInput struct {
	Base string `json:"base" jsonschema:"Knowledge base name to re-index"`
}

// ListBasesInput defines the list_bases tool input. No parameters.
type ListBasesInput struct{}

// RetrieveContext handles the retrieve_context MCP tool call.
func (s *Server) RetrieveContext(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveContextInput) (*mcp.CallToolResult, any, error) {
	out, err := s.service.AnswerContext(ctx, input.Base, retrieval.Query{Text: input.Query})
	if err != nil {
		if errors.Is(err, knowledge.ErrUnknownBase) || errors.Is(err, retrieval.ErrEmptyQuery) {
			return toolError(err), nil, nil
		}
		return nil, nil, fmt.Errorf("retrieve_context failed: %w", err)
	}
	return jsonResult(out, s.logger), nil, nil
}

// indexSummary is the JSON view of one indexing run. Per-document
// failures flatten to strings so they survive marshaling.
type indexSummary struct {
	Base        string   `json:"base"`
	RunID       string   `json:"run_id"`
	Documents   int      `json:"documents"`
	ChunksTotal int      `json:"chunks_total"`
	ChunksNew   int      `json:"chunks_new"`
	ChunksKept  int      `json:"chunks_kept"`
	ChunksStale int      `json:"chunks_stale"`
	Failed      []string `json:"failed,omitempty"`
	Duration    string   `json:"duration"`
}

func summarize(result *rag.IndexResult) indexSummary {
	s := indexSummary{
		Base:        result.Base,
		RunID:       result.RunID,
		Documents:   result.Documents,
		ChunksTotal: result.ChunksTotal,
		ChunksNew:   result.ChunksNew,
		ChunksKept:  result.ChunksKept,
		ChunksStale: result.ChunksStale,
		Duration:    result.Duration.String(),
	}
	for _, f := range result.Failed {
		s.Failed = append(s.Failed, f.Error())
	}
	return s
}

// ReindexBase handles the reindex_base MCP tool call.
func (s *Server) ReindexBase(ctx context.Context, _ *mcp.CallToolRequest, input ReindexBaseInput) (*mcp.CallToolResult, any, error) {
	result, err := s.service.ReindexBase(ctx, input.Base)
	if err != nil {
		if errors.Is(err, knowledge.ErrUnknownBase) || errors.Is(err, rag.ErrIndexInProgress) {
			return toolError(err), nil, nil
		}
		return nil, nil, fmt.Errorf("reindex_base failed: %w", err)
	}
	return jsonResult(summarize(result), s.logger), nil, nil
}

// ListBases handles the list_bases MCP tool call.
func (s *Server) ListBases(ctx context.Context, _ *mcp.CallToolRequest, _ ListBasesInput) (*mcp.CallToolResult, any, error) {
	return jsonResult(map[string]any{"bases": s.service.Bases()}, s.logger), nil, nil
}
