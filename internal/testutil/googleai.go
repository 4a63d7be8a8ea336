package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/koopa0/lore/internal/config"
)

// GoogleAISetup holds a Genkit instance wired to the real Google AI
// plugin, for opt-in live tests.
type GoogleAISetup struct {
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
}

// SetupGoogleAI initializes Genkit with the Google AI plugin and the
// default embedding model. Skips the test when GEMINI_API_KEY is not
// set, so live tests only run where credentials exist.
func SetupGoogleAI(t *testing.T) *GoogleAISetup {
	t.Helper()

	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set - skipping live embedder test")
	}

	ctx := context.Background()
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	embedder := googlegenai.GoogleAIEmbedder(g, config.DefaultGeminiEmbedderModel)
	if embedder == nil {
		t.Fatalf("GoogleAIEmbedder returned nil for model %q", config.DefaultGeminiEmbedderModel)
	}

	return &GoogleAISetup{Genkit: g, Embedder: embedder}
}
