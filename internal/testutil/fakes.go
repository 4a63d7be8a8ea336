// Package testutil provides shared test infrastructure: a pgvector
// Postgres container, deterministic embedding/captioning fakes, and a
// registerable fake vision model for exercising Genkit code paths
// without network access.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Embedder is a deterministic in-process TextEmbedder. The same text
// always maps to the same unit vector, so tests can rely on cosine
// similarity without real API calls. Explicit vectors can be pinned for
// precise similarity control, and transient failures can be injected.
//
// Thread-safe for concurrent use.
type Embedder struct {
	mu      sync.Mutex
	dim     int
	pinned  map[string][]float32
	calls   [][]string
	failN   int
	failErr error
}

// NewEmbedder creates a fake embedder producing vectors of the given
// dimension.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{dim: dim, pinned: make(map[string][]float32)}
}

// Pin registers an explicit vector for a text. Use this to control the
// exact cosine similarity between test inputs.
func (e *Embedder) Pin(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned[text] = vec
}

// FailNext makes the next n EmbedTexts calls return err.
func (e *Embedder) FailNext(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failN = n
	e.failErr = err
}

// Calls returns a copy of every batch of texts embedded so far,
// including failed calls.
func (e *Embedder) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([][]string, len(e.calls))
	for i, c := range e.calls {
		cp[i] = append([]string(nil), c...)
	}
	return cp
}

// Texts returns every text embedded so far, flattened in call order.
func (e *Embedder) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, c := range e.calls {
		out = append(out, c...)
	}
	return out
}

// EmbedTexts implements the embedding boundary used by the indexer and
// the retrieval path.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, append([]string(nil), texts...))

	if e.failN > 0 {
		e.failN--
		return nil, e.failErr
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.pinned[t]; ok {
			out[i] = append([]float32(nil), v...)
			continue
		}
		out[i] = DeterministicVector(t, e.dim)
	}
	return out, nil
}

// DeterministicVector derives a unit vector from text using SHA-256.
// Identical text always produces an identical vector.
func DeterministicVector(text string, dim int) []float32 {
	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Captioner is a fake image captioner returning a fixed caption.
// Failures can be injected to test degradation paths.
//
// Thread-safe for concurrent use.
type Captioner struct {
	mu      sync.Mutex
	caption string
	count   int
	failN   int
	failErr error
}

// NewCaptioner creates a fake captioner that answers every image with
// the given caption.
func NewCaptioner(caption string) *Captioner {
	return &Captioner{caption: caption}
}

// FailNext makes the next n Caption calls return err.
func (c *Captioner) FailNext(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failN = n
	c.failErr = err
}

// Count reports how many times Caption was called.
func (c *Captioner) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Caption implements the captioning boundary used by the retrieval path.
func (c *Captioner) Caption(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if c.failN > 0 {
		c.failN--
		return "", c.failErr
	}
	return c.caption, nil
}

// VisionModel is a fake Genkit vision model. It records the media parts
// it receives and answers with a fixed caption, letting tests drive the
// real Generate call path without a provider.
//
// Thread-safe for concurrent use.
type VisionModel struct {
	mu      sync.Mutex
	caption string
	media   []string // media part URLs/data URIs received, in call order
}

// NewVisionModel creates a fake vision model answering with caption.
func NewVisionModel(caption string) *VisionModel {
	return &VisionModel{caption: caption}
}

// Register defines the fake as a Genkit model named "fake/vision" and
// returns its name for use with ai.WithModelName.
func (v *VisionModel) Register(g *genkit.Genkit) string {
	genkit.DefineModel(g, "fake/vision", &ai.ModelOptions{
		Label: "Fake Vision Model",
		Supports: &ai.ModelSupports{
			Multiturn: false,
			Media:     true,
		},
	}, v.generate)
	return "fake/vision"
}

// Media returns the media content received so far.
func (v *VisionModel) Media() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.media...)
}

func (v *VisionModel) generate(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	v.mu.Lock()
	for _, msg := range req.Messages {
		for _, p := range msg.Content {
			if p.Kind == ai.PartMedia {
				v.media = append(v.media, p.Text)
			}
		}
	}
	caption := v.caption
	v.mu.Unlock()

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(caption)},
		},
	}, nil
}
