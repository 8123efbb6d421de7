package llmprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/llm"
)

const (
	// sseBufferInitial and sseBufferMax size the scanner used for upstream
	// SSE lines; some providers emit very large tool-call argument chunks.
	sseBufferInitial = 12 * 1024
	sseBufferMax     = 10 * 1024 * 1024
)

// Client implements llm.Provider against any OpenAI-compatible upstream.
type Client struct {
	httpClient *resty.Client
	streamHTTP *http.Client
	timeout    time.Duration
}

// NewClient creates a Resty-backed upstream client. The base URL is chosen
// per call from the resolved target, so one client serves every provider.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
		streamHTTP: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

// CreateChatCompletion calls the target's /chat/completions endpoint.
func (c *Client) CreateChatCompletion(ctx context.Context, target llm.Target, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	req.Model = target.ModelName
	req.Stream = false

	var completion openai.ChatCompletionResponse
	request := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&completion)

	if token := llm.AuthTokenFromContext(ctx); token != "" {
		request.SetHeader("Authorization", token)
	}

	resp, err := request.Post(completionsURL(target.BaseURL))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.IsError() {
		return nil, apierror.Upstream("upstream %s returned %d: %s", target.SystemName, resp.StatusCode(), resp.String())
	}
	if len(completion.Choices) == 0 {
		return nil, apierror.Upstream("upstream %s returned no choices", target.SystemName)
	}
	return &completion, nil
}

// CreateChatCompletionStream opens an SSE stream from the target.
func (c *Client) CreateChatCompletionStream(ctx context.Context, target llm.Target, req openai.ChatCompletionRequest) (llm.Stream, error) {
	req.Model = target.ModelName
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsURL(target.BaseURL), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if token := llm.AuthTokenFromContext(ctx); token != "" {
		httpReq.Header.Set("Authorization", token)
	}

	resp, err := c.streamHTTP.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apierror.Upstream("upstream %s returned %d: %s", target.SystemName, resp.StatusCode, string(payload))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, sseBufferInitial), sseBufferMax)
	return &sseStream{resp: resp, scanner: scanner}, nil
}

// Ensure interface compliance.
var _ llm.Provider = (*Client)(nil)

func completionsURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/chat/completions"
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.Timeout("upstream request deadline exceeded").WithCause(err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierror.Timeout("upstream request timed out").WithCause(err)
	}
	return apierror.Upstream("upstream request failed").WithCause(err)
}

// sseStream implements llm.Stream backed by an http.Response body.
type sseStream struct {
	resp    *http.Response
	scanner *bufio.Scanner
}

func (s *sseStream) Recv() (*openai.ChatCompletionStreamResponse, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil, io.EOF
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks
			continue
		}
		return &chunk, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}
