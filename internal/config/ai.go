package config

import "strings"

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation via OutputDimensionality (Matryoshka Representation
	// Learning). The pgvector schema stores DefaultEmbedderDim dimensions.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDim is the vector dimension written to the store.
	// Must match the vector(N) column in the chunks table.
	DefaultEmbedderDim = 768

	// MaxEmbedderDim is the largest dimension gemini-embedding-001 emits.
	MaxEmbedderDim = 3072
)

// FullCaptionModel returns the provider-qualified caption model name for
// Genkit. Examples: "googleai/gemini-2.5-flash", "ollama/llava".
// A name already containing "/" is returned as-is.
func (c *Config) FullCaptionModel() string {
	if strings.Contains(c.CaptionModel, "/") {
		return c.CaptionModel
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.CaptionModel
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.CaptionModel
	default:
		return ProviderGoogleAI + "/" + c.CaptionModel
	}
}
