package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Knowledge base name limits.
const (
	MaxBaseNameLength = 64
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Provider and credentials. GEMINI_API_KEY is read directly by Genkit;
	// only its presence is checked here.
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q is not one of: gemini, ollama, openai", ErrInvalidProvider, c.Provider)
	}

	// Embedder configuration.
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDim < 1 || c.EmbedderDim > MaxEmbedderDim {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidEmbedderDimension, MaxEmbedderDim, c.EmbedderDim)
	}
	if c.CaptionModel == "" {
		return fmt.Errorf("%w: caption_model cannot be empty", ErrInvalidCaptionModel)
	}
	if c.RatePerMinute < 1 || c.RatePerMinute > 10000 {
		return fmt.Errorf("%w: rate_per_minute must be between 1 and 10,000, got %d",
			ErrInvalidRateLimit, c.RatePerMinute)
	}

	// Retrieval tuning.
	r := c.Retrieval
	if r.SimilarityThreshold < 0 || r.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.3f",
			ErrInvalidThreshold, r.SimilarityThreshold)
	}
	if r.TopK < 1 || r.TopK > 10 {
		return fmt.Errorf("%w: must be between 1 and 10, got %d", ErrInvalidTopK, r.TopK)
	}
	if r.MinAccepted < 1 || r.MinAccepted > r.TopK {
		return fmt.Errorf("%w: must be between 1 and top_k (%d), got %d",
			ErrInvalidMinAccepted, r.TopK, r.MinAccepted)
	}
	if r.MaxAttempts < 1 || r.MaxAttempts > 10 {
		return fmt.Errorf("%w: must be between 1 and 10, got %d", ErrInvalidMaxAttempts, r.MaxAttempts)
	}
	if r.QueryTimeout <= 0 {
		return fmt.Errorf("%w: query_timeout must be positive, got %s", ErrInvalidTimeout, r.QueryTimeout)
	}
	if r.CallTimeout <= 0 || r.CallTimeout > r.QueryTimeout {
		return fmt.Errorf("%w: call_timeout must be positive and at most query_timeout (%s), got %s",
			ErrInvalidTimeout, r.QueryTimeout, r.CallTimeout)
	}
	if r.CaptionTimeout <= 0 {
		return fmt.Errorf("%w: caption_timeout must be positive, got %s", ErrInvalidTimeout, r.CaptionTimeout)
	}

	// Indexing tuning.
	ix := c.Indexing
	if ix.EmbedConcurrency < 1 || ix.EmbedConcurrency > 64 {
		return fmt.Errorf("%w: must be between 1 and 64, got %d", ErrInvalidConcurrency, ix.EmbedConcurrency)
	}
	if ix.ChunkMaxTokens < 50 || ix.ChunkMaxTokens > 4000 {
		return fmt.Errorf("%w: chunk_max_tokens must be between 50 and 4,000, got %d",
			ErrInvalidChunkTokens, ix.ChunkMaxTokens)
	}
	if ix.ChunkOverlapTokens < 0 || ix.ChunkOverlapTokens >= ix.ChunkMaxTokens {
		return fmt.Errorf("%w: chunk_overlap_tokens must be non-negative and below chunk_max_tokens (%d), got %d",
			ErrInvalidChunkTokens, ix.ChunkMaxTokens, ix.ChunkOverlapTokens)
	}
	if ix.MaxBatchTokens < ix.ChunkMaxTokens {
		return fmt.Errorf("%w: max_batch_tokens must be at least chunk_max_tokens (%d), got %d",
			ErrInvalidBatchTokens, ix.ChunkMaxTokens, ix.MaxBatchTokens)
	}

	// Store driver.
	switch c.StoreDriver {
	case StorePostgres:
		if err := c.validatePostgres(); err != nil {
			return err
		}
	case StoreMemory:
		// No connection settings needed.
	default:
		return fmt.Errorf("%w: %q is not one of: postgres, memory", ErrInvalidStoreDriver, c.StoreDriver)
	}

	// Fetch limits.
	f := c.Fetch
	if f.Parallelism < 1 || f.Parallelism > 16 {
		return fmt.Errorf("%w: parallelism must be between 1 and 16, got %d", ErrInvalidFetch, f.Parallelism)
	}
	if f.Delay < 0 {
		return fmt.Errorf("%w: delay cannot be negative, got %s", ErrInvalidFetch, f.Delay)
	}
	if f.MaxDepth < 1 || f.MaxDepth > 10 {
		return fmt.Errorf("%w: max_depth must be between 1 and 10, got %d", ErrInvalidFetch, f.MaxDepth)
	}
	if f.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidFetch, f.Timeout)
	}
	if f.MaxPages < 1 || f.MaxPages > 10000 {
		return fmt.Errorf("%w: max_pages must be between 1 and 10,000, got %d", ErrInvalidFetch, f.MaxPages)
	}

	// Serve mode.
	if c.ServerAddr == "" {
		return fmt.Errorf("%w: server_addr cannot be empty", ErrInvalidServerAddr)
	}

	// Knowledge bases.
	if len(c.KnowledgeBases) == 0 {
		return fmt.Errorf("%w: declare at least one entry under knowledge_bases", ErrNoBases)
	}
	seen := make(map[string]bool, len(c.KnowledgeBases))
	for i, b := range c.KnowledgeBases {
		if err := validateBaseName(b.Name); err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrInvalidBase, i, err)
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateBase, b.Name)
		}
		seen[b.Name] = true
		if b.FallbackFile == "" {
			return fmt.Errorf("%w: %q has no fallback_file", ErrInvalidBase, b.Name)
		}
		if b.SourceDir == "" && b.SourceURL == "" {
			return fmt.Errorf("%w: %q needs a source_dir or source_url", ErrInvalidBase, b.Name)
		}
	}

	return nil
}

// validatePostgres checks the PostgreSQL connection settings.
func (c *Config) validatePostgres() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in lore.yaml", ErrInvalidPostgresPassword)
	}

	// Default dev password is allowed but called out; blocking it would
	// break every fresh checkout.
	if c.PostgresPassword == "lore_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in lore.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only; allow/prefer are MITM-vulnerable and excluded.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// validateBaseName checks that a knowledge base name is a usable slug:
// starts with a letter, continues with alphanumerics, underscores, or
// hyphens, and fits in MaxBaseNameLength.
func validateBaseName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > MaxBaseNameLength {
		return fmt.Errorf("name %q exceeds %d characters", name, MaxBaseNameLength)
	}
	first := name[0]
	if (first < 'a' || first > 'z') && (first < 'A' || first > 'Z') {
		return fmt.Errorf("name %q must start with a letter", name)
	}
	for i := 1; i < len(name); i++ {
		ch := name[i]
		if (ch < 'a' || ch > 'z') && (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') && ch != '_' && ch != '-' {
			return fmt.Errorf("name %q may only contain letters, digits, underscores, and hyphens", name)
		}
	}
	return nil
}
