package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/lore/internal/app"
	"github.com/koopa0/lore/internal/log"
)

const (
	// DefaultAddr matches the server_addr configuration default.
	DefaultAddr = "localhost:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads so idle connections cannot
	// hold workers (Slowloris).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Synchronous re-index runs that crawl and embed are the slow case.
	WriteTimeout = 10 * time.Minute

	// IdleTimeout is the keep-alive limit between requests.
	IdleTimeout = 120 * time.Second
)

// ServerConfig carries the API server dependencies.
type ServerConfig struct {
	Service    *app.Service  // Required
	Logger     log.Logger    // Required
	Pool       *pgxpool.Pool // Optional: nil skips the database readiness probe
	TrustProxy bool          // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int           // Rate limiter burst per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer creates the server with all routes and middleware
// configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	qh := &queryHandler{service: cfg.Service, logger: cfg.Logger}
	ih := &indexHandler{service: cfg.Service, logger: cfg.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/bases", ih.listBases)
	mux.HandleFunc("POST /api/v1/context", qh.answer)
	mux.HandleFunc("POST /api/v1/index", ih.reindex)

	// Rate limiter: per-IP token bucket, 1 token/sec refill.
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID sits before Logging so request_id reaches log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, cfg.Logger)(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)

	// Health probes bypass the middleware stack so they stay fast and
	// unthrottled.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, cfg.Logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux, logger: cfg.Logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
