// Package api provides the JSON REST API for the retrieval engine.
//
// # Architecture
//
// Go 1.22+ method routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → RateLimit → Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux, keeping them fast and unthrottled.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health — liveness: {"status":"ok"}
//   - GET /ready  — readiness: pings the database when one is configured
//
// Engine:
//   - GET  /api/v1/bases   — list configured knowledge bases
//   - POST /api/v1/context — answer a query {base, text, image_b64}
//   - POST /api/v1/index   — synchronously re-index one base {base}
//
// # Error Model
//
// Failures return {"error": code, "message": text}. Unknown bases map
// to 404, empty queries to 400, and a re-index already running for the
// requested base to 409 so callers can retry later. Retrieval itself
// never fails a request: provider trouble degrades to the base's
// fallback answer inside a 200 outcome.
package api
