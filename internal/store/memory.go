package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// entry is one stored chunk plus its insertion sequence.
type entry struct {
	chunk Chunk
	seq   int64
}

// Memory is an in-process VectorStore. It mirrors the Postgres driver's
// ranking semantics exactly: cosine similarity descending, insertion order
// on ties, and replacement keeps the original sequence.
//
// Memory is safe for concurrent use by multiple goroutines.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]map[string]*entry // collection -> chunk ID -> entry
	nextSeq int64
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]*entry)}
}

// Upsert implements VectorStore.
func (m *Memory) Upsert(ctx context.Context, collection string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.data[collection]
	if coll == nil {
		coll = make(map[string]*entry)
		m.data[collection] = coll
	}
	for _, c := range chunks {
		if existing, ok := coll[c.ID]; ok {
			existing.chunk = cloneChunk(c)
			continue
		}
		m.nextSeq++
		coll[c.ID] = &entry{chunk: cloneChunk(c), seq: m.nextSeq}
	}
	return nil
}

// Search implements VectorStore.
func (m *Memory) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.data[collection]
	if len(coll) == 0 {
		return nil, nil
	}

	type scored struct {
		e   *entry
		sim float64
	}
	candidates := make([]scored, 0, len(coll))
	for _, e := range coll {
		if len(e.chunk.Embedding) != len(vector) {
			return nil, fmt.Errorf("%w: query has %d dimensions, stored %d",
				ErrDimensionMismatch, len(vector), len(e.chunk.Embedding))
		}
		candidates = append(candidates, scored{e: e, sim: cosineSimilarity(vector, e.chunk.Embedding)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].e.seq < candidates[j].e.seq
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = SearchResult{Chunk: cloneChunk(c.e.chunk), Similarity: c.sim}
	}
	return results, nil
}

// Delete implements VectorStore.
func (m *Memory) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.data[collection]
	for _, id := range ids {
		delete(coll, id)
	}
	return nil
}

// Refs implements VectorStore.
func (m *Memory) Refs(ctx context.Context, collection string) ([]Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.data[collection]
	if len(coll) == 0 {
		return nil, nil
	}

	entries := make([]*entry, 0, len(coll))
	for _, e := range coll {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	refs := make([]Ref, len(entries))
	for i, e := range entries {
		refs[i] = Ref{ID: e.chunk.ID, Document: e.chunk.Document}
	}
	return refs, nil
}

// Count implements VectorStore.
func (m *Memory) Count(ctx context.Context, collection string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data[collection])), nil
}

// cloneChunk copies a chunk so callers cannot mutate stored state through
// shared slices.
func cloneChunk(c Chunk) Chunk {
	out := c
	if c.SectionPath != nil {
		out.SectionPath = append([]string(nil), c.SectionPath...)
	}
	if c.Embedding != nil {
		out.Embedding = append([]float32(nil), c.Embedding...)
	}
	return out
}

// cosineSimilarity computes the cosine of the angle between two equal-length
// vectors. A zero vector yields 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
