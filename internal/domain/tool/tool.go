// Package tool defines the gateway's tool model: native tools executed in
// process, MCP tools proxied to external servers, and function tools
// returned to the caller for execution.
package tool

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/domain/llm"
)

// Tool kinds as they appear in request tool definitions.
const (
	TypeFunction        = "function"
	TypeFileSearch      = "file_search"
	TypeAgenticSearch   = "agentic_search"
	TypeImageGeneration = "image_generation"
	TypePython          = "python"
	TypeThink           = "think"
	TypeMCP             = "mcp"
)

// Emitter receives tool progress events for streaming responses. A nil
// emitter is valid and drops events.
type Emitter func(event string, payload any)

// ExecContext carries request-scoped state into a tool execution.
type ExecContext struct {
	// AuthToken is the caller's bearer token, forwarded to upstreams that
	// the tool calls on the caller's behalf.
	AuthToken string
	// Provider and Target let tools issue their own model calls.
	Provider llm.Provider
	Target   llm.Target
	// Emit publishes tool progress events; nil when not streaming.
	Emit Emitter
}

// EmitEvent publishes an event if an emitter is attached.
func (e *ExecContext) EmitEvent(event string, payload any) {
	if e != nil && e.Emit != nil {
		e.Emit(event, payload)
	}
}

// Tool is an executable tool. Definition is what the upstream model sees;
// every tool surfaces as a function definition on the wire.
type Tool interface {
	Name() string
	Definition() openai.Tool
	Execute(ctx context.Context, arguments string, exec *ExecContext) (string, error)
}

// FunctionDef builds the wire definition for a tool from its JSON schema.
func FunctionDef(name, description string, parameters json.RawMessage) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
