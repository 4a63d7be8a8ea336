package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/koopa0/lore/db"
	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/embed"
	"github.com/koopa0/lore/internal/fetch"
	"github.com/koopa0/lore/internal/knowledge"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/observability"
	"github.com/koopa0/lore/internal/rag"
	"github.com/koopa0/lore/internal/retrieval"
	"github.com/koopa0/lore/internal/store"
)

// Setup builds the engine from cfg. The returned App owns every
// resource opened along the way; call Close to release them. On error,
// anything already initialized is torn down before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	a := &App{Config: cfg, logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first so the provider and store setup below is already
	// covered by the span processor.
	a.otelCleanup = provideOtelCleanup(ctx, cfg, logger)

	st, pool, dbCleanup, err := provideStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.Pool = pool
	a.dbCleanup = dbCleanup

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	providerEmbedder := provideEmbedder(g, cfg)
	if providerEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	// One limiter paces every provider call: embedding batches and image
	// captions draw on the same per-minute quota.
	limiter := provideRateLimiter(cfg)
	embedder := embed.NewGenkitEmbedder(providerEmbedder, cfg.EmbedderDim, limiter, logger)

	var captioner embed.Captioner
	if cfg.CaptionModel != "" {
		captioner = embed.NewGenkitCaptioner(g, cfg.FullCaptionModel(), limiter, logger)
	}

	registry, err := knowledge.NewRegistry(cfg.KnowledgeBases, logger)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	fetcher, err := fetch.NewFetcher(cfg.Fetch, logger)
	if err != nil {
		return nil, err
	}

	indexer, err := rag.NewIndexer(st, embedder, cfg.Indexing, logger)
	if err != nil {
		return nil, err
	}

	orchestrator, err := retrieval.NewOrchestrator(st, embedder, captioner, registry, cfg.Retrieval, logger)
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(st, embedder, logger)
	if err != nil {
		return nil, err
	}
	a.Retrievers = rag.DefineRetrievers(g, retriever, registry.Names())

	service, err := NewService(registry, orchestrator, indexer, fetcher, logger)
	if err != nil {
		return nil, err
	}
	a.Service = service

	logger.Info("engine ready",
		"provider", cfg.Provider,
		"store", cfg.StoreDriver,
		"bases", registry.Names(),
	)
	return a, nil
}

// provideOtelCleanup wires span export and returns the teardown that
// flushes pending spans. Export trouble never fails startup.
func provideOtelCleanup(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	shutdown, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without spans", "error", err)
		return func() {}
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when the parent is canceled
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("flushing spans", "error", err)
		}
	}
}

// provideStore builds the vector store for the configured driver. The
// pool is nil for the memory driver; the cleanup is always safe to call.
func provideStore(ctx context.Context, cfg *config.Config, logger log.Logger) (store.VectorStore, *pgxpool.Pool, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Info("using in-memory vector store; contents will not survive restart")
		return store.NewMemory(), nil, func() {}, nil
	}

	pool, cleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	pg, err := store.NewPostgres(pool, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return pg, pool, cleanup, nil
}

// provideDBPool runs migrations, then opens a PostgreSQL connection pool
// sized for one engine instance.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit registration (no auto-discovery).
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		if cfg.CaptionModel != "" {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
				Name: cfg.CaptionModel,
				Type: "chat",
			}, nil)
		}
		logger.Info("initialized genkit with ollama provider",
			"embedder", cfg.EmbedderModel, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "embedder", cfg.EmbedderModel)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "embedder", cfg.EmbedderModel)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider
// plugin. Each provider keys its embedders differently:
//   - gemini: by model name via GoogleAIEmbedder
//   - ollama: by server address, registered in provideGenkit
//   - openai: auto-registered in Init, looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideRateLimiter paces provider calls at the configured per-minute
// rate. Paced, not windowed: a full-window burst on top of the sustained
// rate could double the quota spend in the first minute of an indexing
// run. A rate of zero or less disables limiting.
func provideRateLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.RatePerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
}
