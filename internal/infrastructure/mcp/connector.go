package mcp

import (
	"context"
	"time"

	"openresponses.ai/gateway/internal/domain/tool"
)

// Connector discovers tools from MCP servers declared per request. Each
// Connect dials the server fresh so request-scoped servers never leak into
// the shared registry.
type Connector struct {
	timeout time.Duration
}

// NewConnector creates a Connector with the given per-call timeout.
func NewConnector(timeout time.Duration) *Connector {
	return &Connector{timeout: timeout}
}

// Connect lists the server's tools and adapts them to the registry contract.
func (c *Connector) Connect(ctx context.Context, label, url string) ([]tool.Tool, error) {
	client := NewClient(label, url, c.timeout)
	infos, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]tool.Tool, 0, len(infos))
	for _, info := range infos {
		tools = append(tools, &serverTool{
			client:      client,
			name:        info.Name,
			remoteName:  info.Name,
			description: info.Description,
			schema:      info.InputSchema,
		})
	}
	return tools, nil
}
