// Package embed produces vector embeddings and image captions through the
// configured Genkit provider.
//
// The two small interfaces here are what the rest of the pipeline depends
// on; the Genkit-backed implementations live in genkit.go. Provider failures
// are wrapped in *Error with a transient/permanent classification so callers
// can decide whether retrying has any chance of helping.
package embed

import "context"

// TextEmbedder turns a batch of texts into one vector per text, in order.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Captioner describes an image in prose suitable for embedding alongside
// query text.
type Captioner interface {
	Caption(ctx context.Context, image []byte) (string, error)
}
