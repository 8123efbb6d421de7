// Package imagegen calls an OpenAI-compatible image generation endpoint.
package imagegen

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/tool"
)

const defaultSize = "1024x1024"

// Client talks to a /v1/images/generations endpoint.
type Client struct {
	httpClient *resty.Client
}

// NewClient builds the image generation client. apiKey may be empty when
// the backend is unauthenticated.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		httpClient.SetAuthToken(apiKey)
	}
	return &Client{httpClient: httpClient}
}

type generationRequest struct {
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type generationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// Generate implements tool.ImageGenerator.
func (c *Client) Generate(ctx context.Context, prompt, size string) ([]tool.GeneratedImage, error) {
	if size == "" {
		size = defaultSize
	}
	var result generationResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(generationRequest{Prompt: prompt, N: 1, Size: size, ResponseFormat: "b64_json"}).
		SetResult(&result).
		Post("/v1/images/generations")
	if err != nil {
		return nil, apierror.Upstream("image generation backend unreachable").WithCause(err)
	}
	if resp.IsError() {
		return nil, apierror.Upstream("image generation backend returned status %d", resp.StatusCode())
	}
	images := make([]tool.GeneratedImage, 0, len(result.Data))
	for _, d := range result.Data {
		images = append(images, tool.GeneratedImage{B64JSON: d.B64JSON, URL: d.URL})
	}
	return images, nil
}

var _ tool.ImageGenerator = (*Client)(nil)
