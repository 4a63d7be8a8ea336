package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that drops all output. log.Logger
// is an alias for *slog.Logger, so this satisfies every constructor in
// the project; prefer log.NewNop() inside packages that already import
// internal/log.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
