// Package llm provides a narrow client abstraction over model vendors.
// The rest of the system hands a system instruction and one user message
// to Complete and gets a single text block back.
package llm

import (
	"context"
	"fmt"

	"github.com/rejoinhq/rejoin/internal/config"
)

// Request carries one completion request.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Client is implemented by each model vendor.
type Client interface {
	// Complete performs one blocking model call and returns the response
	// text. Transport and API errors propagate to the caller; no retries
	// happen at this layer.
	Complete(ctx context.Context, req Request) (string, error)

	// Provider returns the vendor name for logging and metrics labels.
	Provider() string
}

// New builds the configured vendor client.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
