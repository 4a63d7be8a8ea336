// Package store persists chunk vectors and answers nearest-neighbor queries.
//
// Two implementations share the VectorStore interface: Postgres (pgvector,
// the production driver) and Memory (process-local, for tests and
// experiments). Both rank by cosine similarity and break ties by insertion
// order so results are stable across runs.
package store

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Search limits, mirroring the API contract.
const (
	DefaultTopK = 5
	MaxTopK     = 10
)

// ErrDimensionMismatch indicates a query vector whose dimension does not
// match the stored embeddings.
var ErrDimensionMismatch = errors.New("query vector dimension mismatch")

// Chunk is one stored retrievable unit with its embedding.
type Chunk struct {
	ID          string
	Document    string
	SectionPath []string
	Content     string
	Embedding   []float32
}

// SearchResult pairs a chunk with its cosine similarity to the query,
// in [-1, 1] with 1 meaning identical direction.
type SearchResult struct {
	Chunk      Chunk
	Similarity float64
}

// Ref identifies a stored chunk and the document it was cut from. Indexing
// runs use the document name to scope stale deletion away from documents
// that failed to re-chunk.
type Ref struct {
	ID       string
	Document string
}

// VectorStore is the persistence contract the indexing and retrieval
// pipelines depend on. A collection is one knowledge base; collections are
// fully isolated from each other.
type VectorStore interface {
	// Upsert inserts chunks or replaces existing ones by (collection, ID).
	// Replacement keeps the original insertion order for tie-breaking.
	Upsert(ctx context.Context, collection string, chunks []Chunk) error

	// Search returns up to topK chunks ranked by cosine similarity
	// descending, ties broken by insertion order.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)

	// Delete removes chunks by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// Refs lists every chunk in the collection in insertion order.
	Refs(ctx context.Context, collection string) ([]Ref, error)

	// Count reports how many chunks the collection holds.
	Count(ctx context.Context, collection string) (int64, error)
}

// IsTransient reports whether a store error is worth retrying: connection
// failures, shutdowns, serialization conflicts, and network errors. Schema
// and query errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code):
			return true
		case pgErr.Code == pgerrcode.AdminShutdown,
			pgErr.Code == pgerrcode.CrashShutdown,
			pgErr.Code == pgerrcode.CannotConnectNow:
			return true
		case pgErr.Code == pgerrcode.TooManyConnections:
			return true
		case pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected:
			return true
		default:
			return false
		}
	}

	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsSchemaMissing reports whether err means the chunks schema (table,
// vector extension, or column) does not exist — migrations have not run.
// Retrying cannot fix this.
func IsSchemaMissing(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.UndefinedTable, pgerrcode.UndefinedColumn,
		pgerrcode.UndefinedObject, pgerrcode.UndefinedFunction:
		return true
	default:
		return false
	}
}
