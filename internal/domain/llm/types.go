// Package llm defines the contract between the gateway and upstream
// OpenAI-compatible chat completion providers.
package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// Target identifies the upstream endpoint a request is routed to.
type Target struct {
	BaseURL    string
	SystemName string
	ModelName  string
}

// Provider calls the upstream /v1/chat/completions endpoint resolved for a target.
type Provider interface {
	CreateChatCompletion(ctx context.Context, target Target, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, target Target, req openai.ChatCompletionRequest) (Stream, error)
}

// Stream abstracts an SSE chunk stream from an upstream provider.
// Recv returns io.EOF after the terminating [DONE] marker.
type Stream interface {
	Recv() (*openai.ChatCompletionStreamResponse, error)
	Close() error
}
