package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/koopa0/lore/internal/chunk"
	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/embed"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/store"
)

// ErrIndexInProgress is returned when a base is already being indexed.
// Callers map it to a conflict rather than queueing a second run.
var ErrIndexInProgress = errors.New("index run already in progress")

// IndexerStore is the slice of the vector store the indexer needs.
type IndexerStore interface {
	Upsert(ctx context.Context, collection string, chunks []store.Chunk) error
	Delete(ctx context.Context, collection string, ids []string) error
	Refs(ctx context.Context, collection string) ([]store.Ref, error)
}

// DocumentError records one source document that could not be chunked.
// The rest of the run proceeds without it.
type DocumentError struct {
	Document string
	Err      error
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("document %s: %v", e.Document, e.Err)
}

func (e DocumentError) Unwrap() error { return e.Err }

// IndexResult summarizes one indexing run.
type IndexResult struct {
	// Base is the knowledge base that was indexed.
	Base string

	// RunID correlates the run's log lines.
	RunID string

	// Documents is the number of source documents chunked successfully.
	Documents int

	// ChunksTotal is every chunk the current pass produced.
	ChunksTotal int

	// ChunksNew were embedded and stored this run.
	ChunksNew int

	// ChunksKept were already stored with identical content and skipped.
	ChunksKept int

	// ChunksStale were deleted because the current pass no longer
	// produces them.
	ChunksStale int

	// Failed lists documents that could not be chunked.
	Failed []DocumentError

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration
}

// Indexer re-indexes knowledge bases: chunk, embed what changed, upsert,
// and delete what disappeared. Runs against the same base are serialized;
// different bases may run concurrently.
type Indexer struct {
	store    IndexerStore
	embedder embed.TextEmbedder
	cfg      config.IndexingConfig
	logger   log.Logger

	mu     sync.Mutex
	active map[string]bool
}

// NewIndexer wires an indexer. Zero config fields fall back to the
// package defaults so tests can pass a bare struct.
func NewIndexer(st IndexerStore, embedder embed.TextEmbedder, cfg config.IndexingConfig, logger log.Logger) (*Indexer, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.EmbedConcurrency < 1 {
		cfg.EmbedConcurrency = 1
	}
	return &Indexer{
		store:    st,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		active:   make(map[string]bool),
	}, nil
}

// IndexBase synchronizes one base's stored chunks with docs, the full
// current set of its source documents.
//
// Chunk IDs are content hashes, so only changed or new chunks are
// embedded. Stale chunks are deleted only after every new chunk has been
// stored, and never for a document that failed to chunk this run; a parse
// error costs that document its update, not its existing content. A
// document missing from docs entirely is treated as removed and its
// chunks are deleted.
//
// If embedding or storage fails the run stops with the store in a
// consistent prefix state: some new chunks stored, nothing deleted. The
// next successful run converges.
func (ix *Indexer) IndexBase(ctx context.Context, base string, docs []chunk.Document) (*IndexResult, error) {
	if !ix.tryAcquire(base) {
		return nil, fmt.Errorf("%w: %s", ErrIndexInProgress, base)
	}
	defer ix.release(base)

	start := time.Now()
	result := &IndexResult{Base: base, RunID: uuid.NewString()}
	logger := ix.logger.With("run_id", result.RunID, "base", base)
	logger.Info("index run started", "documents", len(docs))

	opts := chunk.Options{
		MaxTokens:     ix.cfg.ChunkMaxTokens,
		OverlapTokens: ix.cfg.ChunkOverlapTokens,
	}
	failedDocs := make(map[string]bool)
	var current []chunk.Chunk
	for _, doc := range docs {
		pieces, err := chunk.Split(doc, opts)
		if err != nil {
			failedDocs[doc.Name] = true
			result.Failed = append(result.Failed, DocumentError{Document: doc.Name, Err: err})
			logger.Warn("document skipped", "document", doc.Name, "error", err)
			continue
		}
		result.Documents++
		current = append(current, pieces...)
	}
	result.ChunksTotal = len(current)

	refs, err := ix.store.Refs(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("listing stored chunks: %w", err)
	}
	existing := make(map[string]bool, len(refs))
	for _, r := range refs {
		existing[r.ID] = true
	}

	currentIDs := make(map[string]bool, len(current))
	var fresh []chunk.Chunk
	for _, c := range current {
		currentIDs[c.ID] = true
		if existing[c.ID] {
			result.ChunksKept++
			continue
		}
		fresh = append(fresh, c)
	}
	result.ChunksNew = len(fresh)

	if err := ix.embedAndStore(ctx, base, fresh); err != nil {
		return nil, err
	}

	// Only now is it safe to drop what the pass no longer produces.
	// Documents that failed to chunk keep their stored chunks.
	var stale []string
	for _, r := range refs {
		if !currentIDs[r.ID] && !failedDocs[r.Document] {
			stale = append(stale, r.ID)
		}
	}
	if len(stale) > 0 {
		if err := ix.store.Delete(ctx, base, stale); err != nil {
			return nil, fmt.Errorf("deleting stale chunks: %w", err)
		}
	}
	result.ChunksStale = len(stale)

	result.Duration = time.Since(start)
	logger.Info("index run complete",
		"documents", result.Documents,
		"chunks_total", result.ChunksTotal,
		"chunks_new", result.ChunksNew,
		"chunks_kept", result.ChunksKept,
		"chunks_stale", result.ChunksStale,
		"failed", len(result.Failed),
		"duration", result.Duration,
	)
	return result, nil
}

// embedAndStore embeds fresh chunks batch by batch and upserts each batch
// as its vectors arrive, at most EmbedConcurrency batches in flight.
func (ix *Indexer) embedAndStore(ctx context.Context, base string, fresh []chunk.Chunk) error {
	if len(fresh) == 0 {
		return nil
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = c.Content
	}
	batches := embed.BatchTexts(texts, ix.cfg.MaxBatchTokens)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(ix.cfg.EmbedConcurrency)

	offset := 0
	for _, batch := range batches {
		// Batches partition texts in order, so this window of fresh is
		// exactly the chunks behind the batch.
		window := fresh[offset : offset+len(batch)]
		offset += len(batch)
		batchTexts := batch

		eg.Go(func() error {
			vectors, err := ix.embedder.EmbedTexts(egCtx, batchTexts)
			if err != nil {
				return fmt.Errorf("embedding batch of %d: %w", len(batchTexts), err)
			}
			if len(vectors) != len(window) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(window))
			}
			rows := make([]store.Chunk, len(window))
			for i, c := range window {
				rows[i] = store.Chunk{
					ID:          c.ID,
					Document:    c.Document,
					SectionPath: c.SectionPath,
					Content:     c.Content,
					Embedding:   vectors[i],
				}
			}
			if err := ix.store.Upsert(egCtx, base, rows); err != nil {
				return fmt.Errorf("storing batch of %d: %w", len(rows), err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (ix *Indexer) tryAcquire(base string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.active[base] {
		return false
	}
	ix.active[base] = true
	return true
}

func (ix *Indexer) release(base string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.active, base)
}
