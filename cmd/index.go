package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/koopa0/lore/internal/app"
	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/rag"
)

// runIndex re-indexes the base named on the command line, or every
// configured base when none is.
func runIndex() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)

	indexFlags := flag.NewFlagSet("index", flag.ContinueOnError)
	indexFlags.SetOutput(os.Stderr)
	if err := indexFlags.Parse(os.Args[2:]); err != nil {
		return fmt.Errorf("parsing index flags: %w", err)
	}
	base := indexFlags.Arg(0)

	// The indexer's per-base guard lives in one process; the file lock
	// keeps a second lore invocation from racing this one on the same
	// store.
	lockPath, err := indexLockPath()
	if err != nil {
		return err
	}
	unlock, err := acquireIndexLock(lockPath, logger)
	if err != nil {
		return err
	}
	defer unlock()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if base != "" {
		res, err := a.Service.ReindexBase(ctx, base)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", base, err)
		}
		fmt.Print(summarizeRun(res))
		return nil
	}

	results, err := a.Service.ReindexAll(ctx)
	for _, res := range results {
		fmt.Print(summarizeRun(res))
	}
	return err
}

// indexLockPath is ~/.lore/index.lock, created on demand.
func indexLockPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	dir := filepath.Join(home, ".lore")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return filepath.Join(dir, "index.lock"), nil
}

// acquireIndexLock takes the cross-process indexing lock without
// blocking. The caller runs the returned func to release it.
func acquireIndexLock(path string, logger log.Logger) (func(), error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another indexing run holds %s", path)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			logger.Warn("releasing index lock", "path", path, "error", err)
		}
	}, nil
}

// summarizeRun formats one run's counters for the terminal.
func summarizeRun(res *rag.IndexResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d documents, %d chunks (%d new, %d kept, %d stale) in %s\n",
		res.Base, res.Documents, res.ChunksTotal, res.ChunksNew, res.ChunksKept, res.ChunksStale,
		res.Duration.Round(time.Millisecond))
	for _, f := range res.Failed {
		fmt.Fprintf(&b, "  failed: %s\n", f.Error())
	}
	return b.String()
}
