// Package sandbox forwards code execution to an external sandbox service.
package sandbox

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/tool"
)

// PythonClient runs python code via the sandbox's /execute endpoint.
type PythonClient struct {
	httpClient *resty.Client
}

// NewPythonClient builds the sandbox client.
func NewPythonClient(baseURL string, timeout time.Duration) *PythonClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &PythonClient{httpClient: httpClient}
}

type executeRequest struct {
	Code string `json:"code"`
}

type executeResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Error  string `json:"error"`
}

// Run implements tool.PythonRunner. Stderr is appended to stdout so the
// model sees the whole picture; a sandbox-level error fails the call.
func (c *PythonClient) Run(ctx context.Context, code string) (string, error) {
	var result executeResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(executeRequest{Code: code}).
		SetResult(&result).
		Post("/execute")
	if err != nil {
		return "", apierror.Upstream("python sandbox unreachable").WithCause(err)
	}
	if resp.IsError() {
		return "", apierror.Upstream("python sandbox returned status %d", resp.StatusCode())
	}
	if result.Error != "" {
		return "", apierror.Upstream("python sandbox: %s", result.Error).WithCode("sandbox_error")
	}
	output := result.Stdout
	if result.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += result.Stderr
	}
	return output, nil
}

var _ tool.PythonRunner = (*PythonClient)(nil)
