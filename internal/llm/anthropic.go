package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient is the Anthropic LLM client.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &AnthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// splitSystem separates leading system messages from the rest of the
// history. Anthropic takes the system prompt as a dedicated parameter
// instead of a message role.
func splitSystem(messages []ChatMessage) (string, []anthropic.MessageParam) {
	var system string
	rest := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" && len(rest) == 0 {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		rest = append(rest, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		})
	}
	return system, rest
}

func (c *AnthropicClient) params(req *CompletionRequest) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	system, messages := splitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(req.Model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(system),
		}})
	}
	return params
}

// Complete sends a completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}

	return &CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// CompleteStream sends a streaming completion request.
func (c *AnthropicClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	start := time.Now()

	stream := c.client.Messages.NewStreaming(ctx, c.params(req))

	var content string
	var tokensOut int
	var stopReason string
	index := 0

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case anthropic.MessageStreamEventTypeContentBlockDelta:
			if event.Delta.Type == "text_delta" {
				delta := event.Delta.Text
				content += delta
				if err := callback(delta, index); err != nil {
					return nil, err
				}
				index++
			}
		case anthropic.MessageStreamEventTypeMessageDelta:
			stopReason = string(event.Delta.StopReason)
			tokensOut = int(event.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &CompletionResponse{
		Content:    content,
		Model:      req.Model,
		TokensOut:  tokensOut,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
