// Package rag connects the chunking, embedding, and vector-store layers
// into the two halves of retrieval-augmented generation: indexing runs
// that keep a knowledge base's stored chunks in sync with its source
// documents, and Genkit retrievers that answer similarity queries
// against those chunks.
//
// # Architecture
//
// Indexing flow:
//
//	documents → chunk.Split → delta vs. stored refs → embed new chunks
//	          → upsert → delete stale chunks → IndexResult
//
// Retrieval flow:
//
//	query → embed → store.Search → ranked documents with similarity
//
// # Indexing
//
// Indexer.IndexBase re-indexes one knowledge base from a full set of
// source documents. Chunk IDs are content-addressed, so the run only
// embeds chunks whose content actually changed; unchanged chunks cost
// nothing. Stale chunks — stored IDs the current pass no longer
// produces — are deleted only after every new chunk is safely stored,
// and never for a document that failed to parse, so a bad edit cannot
// erase the last good copy.
//
// Runs are serialized per base: a second IndexBase call for a base
// that is mid-run fails fast with ErrIndexInProgress rather than
// queueing behind the first.
//
// # Retrieval
//
// DefineRetrievers registers one named Genkit retriever per knowledge
// base. Each retriever embeds the query text, searches its own
// collection, and returns documents carrying the source document name,
// section path, and cosine similarity as metadata.
package rag
