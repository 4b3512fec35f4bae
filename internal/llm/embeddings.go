package llm

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rejoinhq/rejoin/internal/config"
)

// Embedder turns text into a vector for similarity search. Memory storage
// degrades gracefully when no embedder is configured.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const embeddingModel = openai.EmbeddingModelTextEmbedding3Small

// OpenAIEmbedder produces embeddings via the OpenAI embeddings API.
// Anthropic offers no embeddings endpoint, so this is the embedder for
// both chat providers.
type OpenAIEmbedder struct {
	client openai.Client
}

// NewEmbedder returns nil when no OpenAI key is available; callers treat
// a nil embedder as "store without vectors".
func NewEmbedder(cfg config.LLMConfig) *OpenAIEmbedder {
	key := cfg.APIKey
	if cfg.Provider != "openai" {
		key = cfg.EmbeddingAPIKey
	}
	if key == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.Provider == "openai" && cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIEmbedder{client: openai.NewClient(opts...)}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embedding: empty response")
	}

	out := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
