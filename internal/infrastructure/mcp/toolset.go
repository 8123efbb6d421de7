package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/domain/tool"
)

// serverTool adapts one MCP tool to the registry contract.
type serverTool struct {
	client      *Client
	name        string // registered (possibly prefixed) name
	remoteName  string // name on the server
	description string
	schema      json.RawMessage
}

func (t *serverTool) Name() string { return t.name }

func (t *serverTool) Definition() openai.Tool {
	schema := t.schema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return tool.FunctionDef(t.name, t.description, schema)
}

func (t *serverTool) Execute(ctx context.Context, arguments string, exec *tool.ExecContext) (string, error) {
	args := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("mcp tool %s arguments: %w", t.name, err)
		}
	}
	exec.EmitEvent("mcp.calling", map[string]any{"server": t.client.Label(), "tool": t.remoteName})
	return t.client.CallTool(ctx, t.remoteName, args)
}

// Toolset discovers tools from multiple MCP servers and registers them.
type Toolset struct {
	clients []*Client
	logger  zerolog.Logger
}

// NewToolset wires discovery over the given clients.
func NewToolset(clients []*Client, logger zerolog.Logger) *Toolset {
	return &Toolset{
		clients: clients,
		logger:  logger.With().Str("component", "mcp-toolset").Logger(),
	}
}

// RegisterAll lists every server's tools and registers them. On a name
// collision the later tool is registered as label__name and the plain name
// keeps pointing at the first registration. Unreachable servers are logged
// and skipped so one bad server does not take down startup.
func (s *Toolset) RegisterAll(ctx context.Context, registry *tool.Registry) {
	for _, client := range s.clients {
		tools, err := client.ListTools(ctx)
		if err != nil {
			s.logger.Warn().Str("server", client.Label()).Err(err).Msg("mcp tool discovery failed")
			continue
		}
		for _, info := range tools {
			name := info.Name
			if _, taken := registry.Lookup(name); taken {
				name = client.Label() + "__" + info.Name
			}
			registry.Register(&serverTool{
				client:      client,
				name:        name,
				remoteName:  info.Name,
				description: info.Description,
				schema:      info.InputSchema,
			})
			if name != info.Name {
				s.logger.Debug().Str("server", client.Label()).Str("tool", info.Name).Str("alias", name).Msg("mcp tool name collision, prefixed")
			}
		}
	}
}
