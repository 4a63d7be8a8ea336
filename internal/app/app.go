// Package app assembles the engine and exposes it behind one facade.
//
// Setup builds every component in dependency order — tracing, the vector
// store, the Genkit provider, embedding, and the retrieval pipeline — and
// returns an App whose Close releases them in reverse. Service is the
// surface the CLI, HTTP API, and MCP server all call; nothing outside
// this package constructs the pipeline by hand.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/knowledge"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/store"
)

// App is the assembled engine plus the resources it holds open.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Pool     *pgxpool.Pool // nil with the memory store driver
	Store    store.VectorStore
	Registry *knowledge.Registry

	// Service answers queries and runs indexing; entry points should
	// not reach past it.
	Service *Service

	// Retrievers holds the Genkit retriever registered for each base,
	// keyed by base name, for flows that compose retrieval directly.
	Retrievers map[string]ai.Retriever

	logger      log.Logger
	dbCleanup   func()
	otelCleanup func()
}

// Close releases resources in reverse setup order: the database pool
// first, then the span exporter, so shutdown spans still flush.
func (a *App) Close() error {
	if a.logger != nil {
		a.logger.Info("shutting down")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
