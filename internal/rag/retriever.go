package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/lore/internal/embed"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/store"
)

// ErrEmptyQuery is returned for queries with no text to embed.
var ErrEmptyQuery = errors.New("query text is empty")

// SearchStore is the slice of the vector store retrieval needs.
type SearchStore interface {
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]store.SearchResult, error)
}

// Retriever embeds query text and answers nearest-neighbor searches
// against a knowledge base's collection.
type Retriever struct {
	store    SearchStore
	embedder embed.TextEmbedder
	logger   log.Logger
}

// NewRetriever wires a retriever.
func NewRetriever(st SearchStore, embedder embed.TextEmbedder, logger log.Logger) (*Retriever, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Retriever{store: st, embedder: embedder, logger: logger}, nil
}

// Retrieve returns up to topK chunks of base ranked by similarity to
// query. The store clamps topK to its own limits.
func (r *Retriever) Retrieve(ctx context.Context, base, query string, topK int) ([]store.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	vectors, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	results, err := r.store.Search(ctx, base, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", base, err)
	}
	r.logger.Debug("retrieval complete", "base", base, "top_k", topK, "results", len(results))
	return results, nil
}

// RetrieverName is the Genkit registry name for a base's retriever.
func RetrieverName(base string) string {
	return "lore/" + base
}

// DefineRetrievers registers one Genkit retriever per base, keyed by base
// name in the returned map. Callers select topK with a map option
// {"k": n}; anything missing, unparseable, or outside 1 through
// store.MaxTopK falls back to store.DefaultTopK.
func DefineRetrievers(g *genkit.Genkit, r *Retriever, bases []string) map[string]ai.Retriever {
	out := make(map[string]ai.Retriever, len(bases))
	for _, base := range bases {
		out[base] = defineBaseRetriever(g, r, base)
	}
	return out
}

func defineBaseRetriever(g *genkit.Genkit, r *Retriever, base string) ai.Retriever {
	return genkit.DefineRetriever(
		g, RetrieverName(base), nil,
		func(ctx context.Context, req *ai.RetrieverRequest) (*ai.RetrieverResponse, error) {
			query := extractQueryText(req)
			topK := extractTopK(req, store.DefaultTopK)

			results, err := r.Retrieve(ctx, base, query, topK)
			if err != nil {
				return nil, err
			}
			return &ai.RetrieverResponse{Documents: resultsToDocuments(results)}, nil
		},
	)
}

// extractQueryText pulls the text of the first query part.
func extractQueryText(req *ai.RetrieverRequest) string {
	if req.Query != nil && len(req.Query.Content) > 0 {
		return req.Query.Content[0].Text
	}
	return ""
}

// extractTopK reads the "k" option, accepting the numeric types JSON
// decoding and direct callers produce, plus digit strings. Missing,
// unparseable, or out-of-range values yield defaultK.
func extractTopK(req *ai.RetrieverRequest, defaultK int) int {
	opts, ok := req.Options.(map[string]any)
	if !ok {
		return defaultK
	}
	k, exists := opts["k"]
	if !exists {
		return defaultK
	}

	var n int
	switch v := k.(type) {
	case int:
		n = v
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case float32:
		n = int(v)
	case string:
		n = parseTopK(v)
	default:
		return defaultK
	}

	if n < 1 || n > store.MaxTopK {
		return defaultK
	}
	return n
}

// parseTopK parses a small positive decimal; 0 means unparseable or over
// the search limit.
func parseTopK(s string) int {
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0
		}
		n = n*10 + int(ch-'0')
		if n > store.MaxTopK {
			return 0
		}
	}
	return n
}

// resultsToDocuments converts search results to Genkit documents. Source
// attribution and the similarity score travel in metadata so flows can
// cite and threshold without re-querying.
func resultsToDocuments(results []store.SearchResult) []*ai.Document {
	docs := make([]*ai.Document, len(results))
	for i, res := range results {
		metadata := map[string]any{
			"chunk_id":     res.Chunk.ID,
			"document":     res.Chunk.Document,
			"section_path": strings.Join(res.Chunk.SectionPath, " > "),
			"similarity":   res.Similarity,
		}
		docs[i] = ai.DocumentFromText(res.Chunk.Content, metadata)
	}
	return docs
}
