package embed

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/koopa0/lore/internal/log"
)

// GenkitEmbedder adapts a Genkit ai.Embedder to the TextEmbedder interface,
// pinning the output dimensionality so vectors always match the store
// schema.
type GenkitEmbedder struct {
	embedder ai.Embedder
	limiter  *rate.Limiter
	dim      int32
	logger   log.Logger
}

// NewGenkitEmbedder wraps embedder. dim is the dimension the store expects.
// A nil limiter disables provider rate limiting.
func NewGenkitEmbedder(embedder ai.Embedder, dim int, limiter *rate.Limiter, logger log.Logger) *GenkitEmbedder {
	return &GenkitEmbedder{
		embedder: embedder,
		limiter:  limiter,
		dim:      int32(dim), // #nosec G115 -- dim validated to 1..3072 in config
		logger:   logger,
	}
}

// EmbedTexts embeds texts in one provider call and returns one vector per
// text, in input order.
func (g *GenkitEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	// gemini-embedding-001 emits 3072 dimensions unless truncated here.
	dim := g.dim
	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, &Error{Op: "embed", Kind: classify(err), Err: err}
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, &Error{Op: "embed", Kind: KindPermanent,
			Err: fmt.Errorf("%w: sent %d texts, got %d vectors", ErrBatchMismatch, len(texts), len(resp.Embeddings))}
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) != int(g.dim) {
			return nil, &Error{Op: "embed", Kind: KindPermanent,
				Err: fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(e.Embedding), g.dim)}
		}
		out[i] = e.Embedding
	}

	g.logger.Debug("embedded batch", "texts", len(texts), "dim", g.dim)
	return out, nil
}

// captionPrompt asks for prose dense enough to embed next to query text.
const captionPrompt = "Describe this image in one or two sentences for a support search. " +
	"Name visible UI elements, error messages, and any readable text exactly as written."

// GenkitCaptioner describes images with a Genkit vision model.
type GenkitCaptioner struct {
	g       *genkit.Genkit
	model   string
	limiter *rate.Limiter
	logger  log.Logger
}

// NewGenkitCaptioner builds a captioner on model (provider-qualified, e.g.
// "googleai/gemini-2.5-flash"). A nil limiter disables rate limiting.
func NewGenkitCaptioner(g *genkit.Genkit, model string, limiter *rate.Limiter, logger log.Logger) *GenkitCaptioner {
	return &GenkitCaptioner{g: g, model: model, limiter: limiter, logger: logger}
}

// Caption describes image in one or two sentences.
//
// Content type is detected from magic bytes, not trusted metadata; anything
// that does not look like an image fails permanently before a provider call
// is spent on it.
func (c *GenkitCaptioner) Caption(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", &Error{Op: "caption", Kind: KindPermanent,
			Err: fmt.Errorf("%w: empty input", ErrNotAnImage)}
	}

	mediaType := http.DetectContentType(image)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", &Error{Op: "caption", Kind: KindPermanent,
			Err: fmt.Errorf("%w: detected %s", ErrNotAnImage, mediaType)}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	encoded := base64.StdEncoding.EncodeToString(image)
	userMessage := ai.NewUserMessage(
		ai.NewMediaPart(mediaType, "data:"+mediaType+";base64,"+encoded),
		ai.NewTextPart(captionPrompt),
	)

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithMessages(userMessage),
	)
	if err != nil {
		return "", &Error{Op: "caption", Kind: classify(err), Err: err}
	}

	caption := strings.TrimSpace(resp.Text())
	if caption == "" {
		return "", &Error{Op: "caption", Kind: KindTransient, Err: ErrEmptyCaption}
	}

	c.logger.Debug("captioned image", "media_type", mediaType, "bytes", len(image), "caption_len", len(caption))
	return caption, nil
}
