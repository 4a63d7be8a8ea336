package config

import "time"

// RetrievalConfig tunes query-time behavior.
type RetrievalConfig struct {
	// SimilarityThreshold is the minimum cosine similarity a search result
	// needs to be accepted as grounding context. Range [0, 1].
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`

	// TopK is how many nearest chunks to request from the store. Range 1-10.
	TopK int `mapstructure:"top_k" json:"top_k"`

	// MinAccepted is how many results must clear the threshold before the
	// outcome counts as grounded. Fewer triggers the static fallback.
	MinAccepted int `mapstructure:"min_accepted" json:"min_accepted"`

	// MaxAttempts is the total number of calls per retryable stage,
	// including the first. Range 1-10.
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts"`

	// QueryTimeout bounds one whole retrieval, all stages and retries
	// included.
	QueryTimeout time.Duration `mapstructure:"query_timeout" json:"query_timeout"`

	// CallTimeout bounds a single embedding or search call.
	CallTimeout time.Duration `mapstructure:"call_timeout" json:"call_timeout"`

	// CaptionTimeout bounds one image caption call.
	CaptionTimeout time.Duration `mapstructure:"caption_timeout" json:"caption_timeout"`
}

// IndexingConfig tunes ingestion behavior.
type IndexingConfig struct {
	// EmbedConcurrency is the number of embedding calls in flight at once
	// during indexing.
	EmbedConcurrency int `mapstructure:"embed_concurrency" json:"embed_concurrency"`

	// MaxBatchTokens caps the estimated token total of one embedding batch.
	MaxBatchTokens int `mapstructure:"max_batch_tokens" json:"max_batch_tokens"`

	// ChunkMaxTokens is the largest estimated token count for one chunk.
	ChunkMaxTokens int `mapstructure:"chunk_max_tokens" json:"chunk_max_tokens"`

	// ChunkOverlapTokens is carried between forced chunk splits.
	ChunkOverlapTokens int `mapstructure:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`
}

// BaseConfig declares one knowledge base served by this instance.
type BaseConfig struct {
	// Name identifies the base in API calls and store rows.
	Name string `mapstructure:"name" json:"name"`

	// SourceDir is the directory of documents to index.
	SourceDir string `mapstructure:"source_dir" json:"source_dir"`

	// SourceURL optionally roots a web crawl that supplements SourceDir.
	SourceURL string `mapstructure:"source_url" json:"source_url"`

	// FallbackFile is served verbatim when retrieval cannot ground an
	// answer.
	FallbackFile string `mapstructure:"fallback_file" json:"fallback_file"`
}
