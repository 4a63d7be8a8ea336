package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koopa0/lore/internal/embed"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/store"
)

// Backoff bounds for the retryable stages.
const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// transientError reports whether err is worth another attempt: provider
// transients, store transients, and a single call running out its
// timeout.
func transientError(err error) bool {
	return embed.IsTransient(err) || store.IsTransient(err) ||
		errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs call up to MaxAttempts times total, wrapping each
// attempt in CallTimeout and backing off exponentially between transient
// failures. Permanent errors and ctx expiry stop the loop immediately.
func (o *Orchestrator) withRetry(ctx context.Context, logger log.Logger, stage string, call func(context.Context) error) error {
	maxAttempts := o.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := o.backoffInitial
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := o.attempt(ctx, call)
		if err == nil {
			logger.Debug(stage+" succeeded", "attempts", attempt, "elapsed", time.Since(start))
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", stage, ctx.Err())
		}
		if !transientError(err) {
			return fmt.Errorf("%s: %w", stage, err)
		}
		if attempt == maxAttempts {
			break
		}

		logger.Debug("retrying "+stage, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", stage, ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, o.backoffMax)
		}
	}
	return fmt.Errorf("%s failed after %d attempts in %v: %w",
		stage, maxAttempts, time.Since(start), lastErr)
}

// attempt wraps one call in the per-call timeout.
func (o *Orchestrator) attempt(ctx context.Context, call func(context.Context) error) error {
	if o.cfg.CallTimeout > 0 {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
		return call(cctx)
	}
	return call(ctx)
}
