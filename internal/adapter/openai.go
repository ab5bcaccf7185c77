package adapter

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// openaiEmbedder produces embeddings via the OpenAI embeddings API. It is
// the non-local alternative for hosts that cannot run an embedding model.
type openaiEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAI creates an OpenAI embedder. An empty apiKey falls back to the
// OPENAI_API_KEY environment variable.
func NewOpenAI(apiKey, model string, dimensions int) Embedder {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = openai.SmallEmbedding3
	}
	return &openaiEmbedder{
		client:     openai.NewClient(apiKey),
		model:      m,
		dimensions: dimensions,
	}
}

func (o *openaiEmbedder) Dimensions() int {
	return o.dimensions
}

func (o *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	return vecs[0], nil
}

func (o *openaiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      o.model,
		Input:      texts,
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) != o.dimensions {
			return nil, fmt.Errorf("openai embed: dimension %d, expected %d", len(d.Embedding), o.dimensions)
		}
		out[i] = Normalize(d.Embedding)
	}
	return out, nil
}
