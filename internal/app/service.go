package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/koopa0/lore/internal/fetch"
	"github.com/koopa0/lore/internal/knowledge"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/rag"
	"github.com/koopa0/lore/internal/retrieval"
)

// Service bundles the engine's two entry points behind one facade the
// CLI, HTTP API, and MCP server all share: answering queries and
// re-indexing bases from their configured sources.
type Service struct {
	registry     *knowledge.Registry
	orchestrator *retrieval.Orchestrator
	indexer      *rag.Indexer
	fetcher      *fetch.Fetcher
	logger       log.Logger
}

// NewService wires the facade.
func NewService(registry *knowledge.Registry, orchestrator *retrieval.Orchestrator, indexer *rag.Indexer, fetcher *fetch.Fetcher, logger log.Logger) (*Service, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		registry:     registry,
		orchestrator: orchestrator,
		indexer:      indexer,
		fetcher:      fetcher,
		logger:       logger,
	}, nil
}

// Bases returns the configured base names in configuration order.
func (s *Service) Bases() []string {
	return s.registry.Names()
}

// AnswerContext answers one query against the named base.
func (s *Service) AnswerContext(ctx context.Context, base string, q retrieval.Query) (*retrieval.Outcome, error) {
	return s.orchestrator.AnswerContext(ctx, base, q)
}

// ReindexBase gathers the named base's documents from its configured
// sources and runs one indexing pass over them.
//
// The document set passed to the indexer is authoritative: anything
// stored but absent from it is deleted as stale. A failed crawl
// therefore aborts the run rather than letting previously crawled
// content vanish, and an emptied source directory really does empty
// the base.
func (s *Service) ReindexBase(ctx context.Context, name string) (*rag.IndexResult, error) {
	base, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	docs, err := base.LoadDocuments()
	if err != nil {
		return nil, err
	}
	if base.SourceURL != "" {
		crawled, err := s.fetcher.Crawl(ctx, base.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("crawling source for base %q: %w", name, err)
		}
		docs = append(docs, crawled...)
	}

	return s.indexer.IndexBase(ctx, name, docs)
}

// ReindexAll re-indexes every configured base in order. Bases keep
// going after one fails; the joined error reports every failure.
func (s *Service) ReindexAll(ctx context.Context) ([]*rag.IndexResult, error) {
	var (
		results []*rag.IndexResult
		errs    []error
	)
	for _, name := range s.registry.Names() {
		result, err := s.ReindexBase(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("base %q: %w", name, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}
