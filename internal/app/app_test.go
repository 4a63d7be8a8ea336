package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/log"
)

// testConfig returns a config that assembles entirely offline: memory
// store driver and the ollama provider, whose plugin registers lazily
// without dialing the server.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docs, 0o750); err != nil {
		t.Fatalf("creating docs dir: %v", err)
	}
	fallback := filepath.Join(dir, "fallback.md")
	writeFile(t, fallback, "contact support for help\n")

	return &config.Config{
		Provider:      config.ProviderOllama,
		EmbedderModel: "nomic-embed-text",
		EmbedderDim:   8,
		CaptionModel:  "llava",
		RatePerMinute: 600,
		OllamaHost:    "http://localhost:11434",
		StoreDriver:   config.StoreMemory,
		KnowledgeBases: []config.BaseConfig{{
			Name:         "support",
			SourceDir:    docs,
			FallbackFile: fallback,
		}},
	}
}

func TestSetup_Validation(t *testing.T) {
	logger := log.NewNop()

	if _, err := Setup(context.Background(), nil, logger); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := Setup(context.Background(), testConfig(t), nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestSetup_MemoryStore(t *testing.T) {
	a, err := Setup(context.Background(), testConfig(t), log.NewNop())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	if a.Service == nil {
		t.Error("expected Service to be wired")
	}
	if a.Store == nil {
		t.Error("expected Store to be wired")
	}
	if a.Pool != nil {
		t.Error("memory driver should not open a database pool")
	}
	if got := a.Service.Bases(); len(got) != 1 || got[0] != "support" {
		t.Errorf("Bases() = %v, want [support]", got)
	}
	if _, ok := a.Retrievers["support"]; !ok {
		t.Errorf("Retrievers = %v, want an entry for support", a.Retrievers)
	}
}

func TestSetup_UnreadableFallbackFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.KnowledgeBases[0].FallbackFile = filepath.Join(t.TempDir(), "missing.md")

	_, err := Setup(context.Background(), cfg, log.NewNop())
	if err == nil {
		t.Fatal("expected error for an unreadable fallback file")
	}
	if !strings.Contains(err.Error(), "fallback") {
		t.Errorf("error = %v, want mention of the fallback file", err)
	}
}

func TestApp_Close(t *testing.T) {
	t.Run("zero value", func(t *testing.T) {
		if err := (&App{}).Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	t.Run("pool closes before span flush", func(t *testing.T) {
		var order []string
		a := &App{
			logger:      log.NewNop(),
			dbCleanup:   func() { order = append(order, "db") },
			otelCleanup: func() { order = append(order, "otel") },
		}
		if err := a.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if len(order) != 2 || order[0] != "db" || order[1] != "otel" {
			t.Errorf("cleanup order = %v, want [db otel]", order)
		}
	})
}

func TestProvideRateLimiter(t *testing.T) {
	if l := provideRateLimiter(&config.Config{}); l != nil {
		t.Error("zero rate should disable the limiter")
	}

	l := provideRateLimiter(&config.Config{RatePerMinute: 120})
	if l == nil {
		t.Fatal("expected a limiter")
	}
	if !l.Allow() {
		t.Error("first call should be admitted immediately")
	}
	if l.Allow() {
		t.Error("second immediate call should wait for the refill")
	}
}
