package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/lore/internal/log"
)

// health is the liveness probe. Returns 200 with {"status":"ok"}
// whenever the process can serve requests at all.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness returns the readiness probe handler. With a database pool it
// pings on every call; without one the store is in-process and there is
// no external dependency to wait for.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				logger.Error("readiness check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "not_ready", "database not reachable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
