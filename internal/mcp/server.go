package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/lore/internal/app"
	"github.com/koopa0/lore/internal/log"
)

// Server wraps the MCP SDK server around the engine facade.
type Server struct {
	mcpServer *mcp.Server
	service   *app.Service
	logger    log.Logger
	name      string
	version   string
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Service *app.Service
	Logger  log.Logger
}

// NewServer creates an MCP server with the retrieval tools registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		service: cfg.Service,
		logger:  cfg.Logger,
		name:    cfg.Name,
		version: cfg.Version,
	}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run starts the MCP server on the given transport. Blocks until the
// context ends or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// registerTools registers the retrieval engine's tool surface.
func (s *Server) registerTools() error {
	retrieveSchema, err := jsonschema.For[RetrieveContextInput](nil)
	if err != nil {
		return fmt.Errorf("schema for retrieve_context: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "retrieve_context",
		Description: "Answer a question against a knowledge base using semantic retrieval. " +
			"Returns ranked source chunks when the base grounds the query, or the base's " +
			"fallback prompt with a reason when it does not.",
		InputSchema: retrieveSchema,
	}, s.RetrieveContext)

	reindexSchema, err := jsonschema.For[ReindexBaseInput](nil)
	if err != nil {
		return fmt.Errorf("schema for reindex_base: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "reindex_base",
		Description: "Re-index one knowledge base from its configured sources. Only changed " +
			"content is re-embedded; stale chunks are deleted. Fails fast when a run for the " +
			"same base is already in flight.",
		InputSchema: reindexSchema,
	}, s.ReindexBase)

	listSchema, err := jsonschema.For[ListBasesInput](nil)
	if err != nil {
		return fmt.Errorf("schema for list_bases: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_bases",
		Description: "List the configured knowledge bases available for retrieval.",
		InputSchema: listSchema,
	}, s.ListBases)

	return nil
}
