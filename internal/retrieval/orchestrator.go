// Package retrieval runs the query path: fuse text and image into one
// embeddable string, embed it, search the base's collection, and either
// return grounded context or the base's static fallback answer.
//
// Failures degrade, they do not surface: transient provider and store
// errors are retried with backoff, exhaustion serves the fallback, and a
// circuit breaker stops hammering a provider that keeps failing. The only
// errors callers see are their own cancellation and configuration faults
// like an unknown base.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/embed"
	"github.com/koopa0/lore/internal/knowledge"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/store"
)

// ErrEmptyQuery rejects queries with no text.
var ErrEmptyQuery = errors.New("query text is empty")

// SearchStore is the slice of the vector store the query path needs.
type SearchStore interface {
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]store.SearchResult, error)
}

// Orchestrator answers queries. It keeps no per-query state; concurrent
// queries share only the circuit breaker.
type Orchestrator struct {
	store    SearchStore
	embedder embed.TextEmbedder
	registry *knowledge.Registry
	fuser    *Fuser
	breaker  *CircuitBreaker
	cfg      config.RetrievalConfig
	logger   log.Logger

	backoffInitial time.Duration
	backoffMax     time.Duration
}

// NewOrchestrator wires the query path. captioner may be nil when no
// vision model is configured; image queries then answer from text alone.
func NewOrchestrator(st SearchStore, embedder embed.TextEmbedder, captioner embed.Captioner, registry *knowledge.Registry, cfg config.RetrievalConfig, logger log.Logger) (*Orchestrator, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Orchestrator{
		store:          st,
		embedder:       embedder,
		registry:       registry,
		fuser:          NewFuser(captioner, cfg.CaptionTimeout, logger),
		breaker:        NewCircuitBreaker(CircuitConfig{}),
		cfg:            cfg,
		logger:         logger,
		backoffInitial: initialBackoff,
		backoffMax:     maxBackoff,
	}, nil
}

// AnswerContext answers one query against the named base.
//
// The returned error is non-nil only for caller faults: an unknown base,
// an empty query, or the caller's own context ending. Every retrieval
// failure is absorbed into a fallback outcome so user-facing surfaces
// always have something to serve.
func (o *Orchestrator) AnswerContext(ctx context.Context, baseName string, q Query) (*Outcome, error) {
	base, err := o.registry.Get(baseName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}

	queryID := uuid.NewString()
	logger := o.logger.With("query_id", queryID, "base", baseName)

	if err := o.breaker.Allow(); err != nil {
		logger.Warn("provider circuit open, serving fallback")
		return o.fallback(base, queryID, ReasonRetrievalUnavailable, false)
	}

	qctx := ctx
	if o.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, o.cfg.QueryTimeout)
		defer cancel()
	}

	fused, degraded := o.fuser.Fuse(qctx, q)

	var vector []float32
	err = o.withRetry(qctx, logger, "embedding query", func(cctx context.Context) error {
		vectors, embedErr := o.embedder.EmbedTexts(cctx, []string{fused})
		if embedErr != nil {
			return embedErr
		}
		if len(vectors) != 1 {
			return fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
		}
		vector = vectors[0]
		return nil
	})
	if err != nil {
		return o.absorb(ctx, qctx, base, queryID, degraded, err, logger)
	}

	var results []store.SearchResult
	err = o.withRetry(qctx, logger, "searching store", func(cctx context.Context) error {
		r, searchErr := o.store.Search(cctx, baseName, vector, o.cfg.TopK)
		if searchErr != nil {
			return searchErr
		}
		results = r
		return nil
	})
	if err != nil {
		return o.absorb(ctx, qctx, base, queryID, degraded, err, logger)
	}

	o.breaker.Success()

	accepted := acceptResults(results, o.cfg.SimilarityThreshold)
	minAccepted := o.cfg.MinAccepted
	if minAccepted < 1 {
		minAccepted = 1
	}
	if len(accepted) < minAccepted {
		logger.Info("nothing cleared the similarity threshold",
			"results", len(results), "accepted", len(accepted), "threshold", o.cfg.SimilarityThreshold)
		return o.fallback(base, queryID, ReasonNoMatch, degraded)
	}

	logger.Info("query grounded",
		"accepted", len(accepted), "top_similarity", accepted[0].Similarity, "degraded", degraded)
	return &Outcome{QueryID: queryID, Grounded: true, Sources: accepted, Degraded: degraded}, nil
}

// absorb maps a stage failure onto the fallback outcome. The caller's own
// context ending is the one error that propagates.
func (o *Orchestrator) absorb(ctx, qctx context.Context, base *knowledge.Base, queryID string, degraded bool, err error, logger log.Logger) (*Outcome, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("query canceled: %w", ctx.Err())
	}

	o.breaker.Failure()
	reason := ReasonRetrievalUnavailable
	if qctx.Err() != nil {
		reason = ReasonTimeout
	}
	logger.Warn("retrieval failed, serving fallback", "reason", reason, "error", err)
	return o.fallback(base, queryID, reason, degraded)
}

func (o *Orchestrator) fallback(base *knowledge.Base, queryID string, reason Reason, degraded bool) (*Outcome, error) {
	return &Outcome{
		QueryID:  queryID,
		Fallback: base.Fallback(),
		Reason:   reason,
		Degraded: degraded,
	}, nil
}

// acceptResults keeps results at or above threshold, preserving the
// store's rank order.
func acceptResults(results []store.SearchResult, threshold float64) []Source {
	var accepted []Source
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		accepted = append(accepted, Source{
			Document:    r.Chunk.Document,
			SectionPath: r.Chunk.SectionPath,
			Content:     r.Chunk.Content,
			Similarity:  r.Similarity,
		})
	}
	return accepted
}
