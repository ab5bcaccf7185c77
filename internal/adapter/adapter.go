// Package adapter provides text embedding for the memory core: a provider
// interface, concrete Ollama and OpenAI backends, a process-wide lazily
// initialized registry, and the vector blob codec.
package adapter

import (
	"context"
	"fmt"
)

// Provider name constants.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultDimensions matches bge-small-en-v1.5-class embedding models.
const DefaultDimensions = 384

// Embedder converts text into fixed-dimension unit vectors.
type Embedder interface {
	// Embed returns the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed output dimension.
	Dimensions() int
}

// Config selects and parameterizes an embedding provider.
type Config struct {
	Provider   string // "ollama" (default) or "openai"
	Model      string
	Dimensions int
	OllamaHost string
	APIKey     string // OpenAI only; empty = read from env by the client
}

// New constructs the Embedder for the configured provider.
func New(cfg Config) (Embedder, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	switch cfg.Provider {
	case "", ProviderOllama:
		host := cfg.OllamaHost
		if host == "" {
			host = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "bge-small-en-v1.5"
		}
		return NewOllama(host, model, cfg.Dimensions), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("adapter: unknown provider %q; valid providers: ollama, openai", cfg.Provider)
	}
}
