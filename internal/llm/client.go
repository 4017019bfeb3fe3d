// Package llm provides model-provider clients behind a common streaming
// interface.
package llm

import (
	"context"
	"errors"
)

// StreamCallback is called for each text delta during streaming.
type StreamCallback func(delta string, index int) error

// ChatMessage is one entry of the ordered history sent to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries the target model and message history.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is the final result of a completion, streamed or not.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// CompleteStream sends a streaming completion request, invoking the
	// callback per delta. The provider may fail mid-stream; no partial
	// response is returned in that case.
	CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Options holds provider credentials and endpoint overrides.
type Options struct {
	APIKey  string
	BaseURL string
}

// NewClient creates a new LLM client for the given provider.
func NewClient(provider Provider, opts Options) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(opts.APIKey, opts.BaseURL)
	case ProviderAnthropic:
		return NewAnthropicClient(opts.APIKey)
	default:
		return nil, errors.New("unknown LLM provider: " + string(provider))
	}
}
