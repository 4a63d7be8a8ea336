package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/lore/internal/log"
)

// Querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// upsertChunkSQL replaces a chunk's content and embedding in place. The seq
// column is deliberately untouched on conflict so insertion order survives
// re-indexing, keeping tie-breaks stable.
const upsertChunkSQL = `INSERT INTO chunks (collection, chunk_id, document, section_path, content, embedding)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (collection, chunk_id) DO UPDATE
	SET document = EXCLUDED.document,
	    section_path = EXCLUDED.section_path,
	    content = EXCLUDED.content,
	    embedding = EXCLUDED.embedding,
	    updated_at = now()`

// Postgres is the pgvector-backed VectorStore.
//
// Postgres is safe for concurrent use by multiple goroutines.
type Postgres struct {
	db     Querier
	logger log.Logger
}

// NewPostgres creates a Postgres store on db (a pool or transaction).
func NewPostgres(db Querier, logger log.Logger) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Postgres{db: db, logger: logger}, nil
}

// Upsert implements VectorStore. All chunks go out in one batch round-trip.
func (p *Postgres) Upsert(ctx context.Context, collection string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		path, err := json.Marshal(c.SectionPath)
		if err != nil {
			return fmt.Errorf("encoding section path for %s: %w", c.ID, err)
		}
		batch.Queue(upsertChunkSQL,
			collection, c.ID, c.Document, path, c.Content, pgvector.NewVector(c.Embedding))
	}

	br := p.db.SendBatch(ctx, batch)
	var execErr error
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			execErr = fmt.Errorf("upserting chunk %s: %w", chunks[i].ID, err)
			break
		}
	}
	closeErr := br.Close()
	if execErr != nil {
		return execErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing upsert batch: %w", closeErr)
	}

	p.logger.Debug("upserted chunks", "collection", collection, "count", len(chunks))
	return nil
}

// Search implements VectorStore.
func (p *Postgres) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	rows, err := p.db.Query(ctx,
		`SELECT chunk_id, document, section_path, content, embedding,
		        1 - (embedding <=> $2) AS similarity
		 FROM chunks
		 WHERE collection = $1
		 ORDER BY embedding <=> $2, seq
		 LIMIT $3`,
		collection, pgvector.NewVector(vector), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// Delete implements VectorStore.
func (p *Postgres) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tag, err := p.db.Exec(ctx,
		`DELETE FROM chunks WHERE collection = $1 AND chunk_id = ANY($2)`,
		collection, ids,
	)
	if err != nil {
		return fmt.Errorf("deleting %d chunks: %w", len(ids), err)
	}

	p.logger.Debug("deleted chunks", "collection", collection, "requested", len(ids), "deleted", tag.RowsAffected())
	return nil
}

// Refs implements VectorStore.
func (p *Postgres) Refs(ctx context.Context, collection string) ([]Ref, error) {
	rows, err := p.db.Query(ctx,
		`SELECT chunk_id, document FROM chunks WHERE collection = $1 ORDER BY seq`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chunk refs: %w", err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var r Ref
		if err := rows.Scan(&r.ID, &r.Document); err != nil {
			return nil, fmt.Errorf("scanning chunk ref: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk refs: %w", err)
	}
	return refs, nil
}

// Count implements VectorStore.
func (p *Postgres) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := p.db.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE collection = $1`,
		collection,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// scanResults reads SearchResult rows (standard column set plus similarity).
func scanResults(rows pgx.Rows) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var (
			r    SearchResult
			path []byte
			vec  pgvector.Vector
		)
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.Document, &path, &r.Chunk.Content, &vec, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if err := json.Unmarshal(path, &r.Chunk.SectionPath); err != nil {
			return nil, fmt.Errorf("decoding section path for %s: %w", r.Chunk.ID, err)
		}
		r.Chunk.Embedding = vec.Slice()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}
