// Package knowledge manages the configured knowledge bases: their names,
// document sources, and the per-base fallback text served when retrieval
// comes up empty.
//
// Fallback files are read exactly once, when the registry is built; a
// missing or empty file fails construction rather than surfacing at query
// time. Bases are immutable after construction, so concurrent readers
// need no locking.
package knowledge

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/log"
)

var (
	// ErrUnknownBase reports a lookup for a base that is not configured.
	ErrUnknownBase = errors.New("unknown knowledge base")

	// ErrEmptyFallback reports a fallback file with no usable text.
	ErrEmptyFallback = errors.New("fallback file is empty")
)

// Base is one configured knowledge base. The collection name in the
// vector store equals Name.
type Base struct {
	Name      string
	SourceDir string
	SourceURL string

	fallback string
}

// Fallback returns the base's fallback text, loaded at startup.
func (b *Base) Fallback() string {
	return b.fallback
}

// Registry resolves base names to their runtime representation.
type Registry struct {
	bases map[string]*Base
	order []string
	log   log.Logger
}

// NewRegistry loads every configured base, reading each fallback file
// once. Any unreadable or empty fallback file fails construction.
func NewRegistry(configs []config.BaseConfig, logger log.Logger) (*Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one knowledge base is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	r := &Registry{
		bases: make(map[string]*Base, len(configs)),
		log:   logger,
	}
	for _, bc := range configs {
		fallback, err := loadFallback(bc.FallbackFile)
		if err != nil {
			return nil, fmt.Errorf("loading fallback for base %q: %w", bc.Name, err)
		}
		r.bases[bc.Name] = &Base{
			Name:      bc.Name,
			SourceDir: bc.SourceDir,
			SourceURL: bc.SourceURL,
			fallback:  fallback,
		}
		r.order = append(r.order, bc.Name)

		logger.Debug("knowledge base registered",
			"base", bc.Name,
			"source_dir", bc.SourceDir,
			"source_url", bc.SourceURL,
			"fallback_bytes", len(fallback))
	}
	return r, nil
}

// Get returns the named base or ErrUnknownBase.
func (r *Registry) Get(name string) (*Base, error) {
	b, ok := r.bases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBase, name)
	}
	return b, nil
}

// Names returns the base names in configuration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns every base in configuration order.
func (r *Registry) All() []*Base {
	out := make([]*Base, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.bases[name])
	}
	return out
}

func loadFallback(path string) (string, error) {
	// #nosec G304 -- path comes from the operator's own configuration
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading fallback file: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyFallback, path)
	}
	return text, nil
}
