package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/koopa0/lore/internal/chunk"
)

// documentExtensions are the file types picked up from a source
// directory. Everything else is ignored.
var documentExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// LoadDocuments reads the base's source directory into documents, one
// per file, ordered by file name so repeated runs see the same sequence.
// Bases without a source directory return nothing; their documents come
// from web ingestion instead.
func (b *Base) LoadDocuments() ([]chunk.Document, error) {
	if b.SourceDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(b.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("reading source directory for base %q: %w", b.Name, err)
	}

	var docs []chunk.Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !documentExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		path := filepath.Join(b.SourceDir, entry.Name())
		// #nosec G304 -- path is inside the operator-configured source dir
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading document %s: %w", path, err)
		}
		docs = append(docs, chunk.Document{
			Name: entry.Name(),
			Text: string(raw),
		})
	}
	return docs, nil
}
