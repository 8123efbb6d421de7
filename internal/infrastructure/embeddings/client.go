// Package embeddings provides a client for OpenAI-compatible embedding
// endpoints, used by the vector store subsystem and the embeddings proxy.
package embeddings

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/llm"
)

// Client calls an OpenAI-compatible /embeddings endpoint.
type Client struct {
	httpClient *resty.Client
	apiKey     string
	model      string
}

// NewClient creates a Resty-backed embeddings client. apiKey may be empty,
// in which case the caller's bearer token from context is forwarded.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
		apiKey: apiKey,
		model:  model,
	}
}

// Model returns the embedding model this client is configured for.
func (c *Client) Model() string {
	return c.model
}

// Request mirrors the OpenAI embeddings request shape.
type Request struct {
	Model          string `json:"model"`
	Input          any    `json:"input"`
	EncodingFormat string `json:"encoding_format,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty"`
}

// Response mirrors the OpenAI embeddings response shape.
type Response struct {
	Object string  `json:"object"`
	Data   []Datum `json:"data"`
	Model  string  `json:"model"`
	Usage  Usage   `json:"usage"`
}

// Datum is one embedding vector in a response.
type Datum struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// Usage carries token accounting for an embeddings call.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Embed computes one embedding per input text using the configured model.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.CreateEmbeddings(ctx, Request{Model: c.model, Input: texts})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, apierror.Upstream("embedding service returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for _, datum := range resp.Data {
		if datum.Index < 0 || datum.Index >= len(texts) {
			return nil, apierror.Upstream("embedding service returned out-of-range index %d", datum.Index)
		}
		vectors[datum.Index] = datum.Embedding
	}
	return vectors, nil
}

// CreateEmbeddings forwards a raw embeddings request, used by the proxy endpoint.
func (c *Client) CreateEmbeddings(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	var result Response
	request := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result)

	if c.apiKey != "" {
		request.SetHeader("Authorization", "Bearer "+c.apiKey)
	} else if token := llm.AuthTokenFromContext(ctx); token != "" {
		request.SetHeader("Authorization", token)
	}

	resp, err := request.Post("/embeddings")
	if err != nil {
		return nil, apierror.Upstream("embedding request failed").WithCause(err)
	}
	if resp.IsError() {
		return nil, apierror.Upstream("embedding service returned %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Data) == 0 {
		return nil, apierror.Upstream("embedding service returned no data")
	}
	return &result, nil
}
