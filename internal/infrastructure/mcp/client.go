// Package mcp speaks JSON-RPC to Model Context Protocol servers over HTTP
// and adapts their tools into the gateway registry.
package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"openresponses.ai/gateway/internal/domain/apierror"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// ToolInfo describes one tool advertised by a server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Client is one MCP server connection.
type Client struct {
	httpClient *resty.Client
	label      string
	nextID     atomic.Int64
}

// NewClient connects to an MCP server. label namespaces its tools when
// names collide across servers.
func NewClient(label, url string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(url).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{httpClient: httpClient, label: label}
}

// Label returns the server's configured label.
func (c *Client) Label() string { return c.label }

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	request := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	var response rpcResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("")
	if err != nil {
		return apierror.Upstream("mcp server %s unreachable", c.label).WithCause(err)
	}
	if resp.IsError() {
		return apierror.Upstream("mcp server %s returned status %d", c.label, resp.StatusCode())
	}
	if response.Error != nil {
		return apierror.Upstream("mcp server %s: %s", c.label, response.Error.Message).WithCode("mcp_error")
	}
	if result != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return apierror.Upstream("mcp server %s returned malformed result", c.label).WithCause(err)
		}
	}
	return nil
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var result struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallTool invokes a tool and returns its text content. A tool-level error
// surfaces as an error so the orchestrator can wrap it as a failed output.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	var result struct {
		Content []contentBlock `json:"content"`
		IsError bool           `json:"isError"`
	}
	params := callToolParams{Name: name, Arguments: arguments}
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return "", err
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return "", apierror.Upstream("mcp tool %s failed: %s", name, text).WithCode("mcp_tool_error")
	}
	return text, nil
}
