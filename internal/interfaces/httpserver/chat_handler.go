package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/llm"
	"openresponses.ai/gateway/internal/domain/responses"
)

// ChatHandler proxies /v1/chat/completions to the resolved upstream
// provider without orchestration.
type ChatHandler struct {
	provider llm.Provider
	resolver responses.TargetResolver
	logger   zerolog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(provider llm.Provider, resolver responses.TargetResolver, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		provider: provider,
		resolver: resolver,
		logger:   logger.With().Str("component", "chat-handler").Logger(),
	}
}

// Create handles POST /v1/chat/completions.
func (h *ChatHandler) Create(c *gin.Context) {
	var req openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}

	target, err := h.resolver.Resolve(req.Model, c.Request.Header)
	if err != nil {
		writeError(c, err)
		return
	}
	req.Model = target.ModelName

	if req.Stream {
		h.stream(c, target, req)
		return
	}

	resp, err := h.provider.CreateChatCompletion(c.Request.Context(), target, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) stream(c *gin.Context, target llm.Target, req openai.ChatCompletionRequest) {
	stream, err := h.provider.CreateChatCompletionStream(c.Request.Context(), target, req)
	if err != nil {
		writeError(c, err)
		return
	}
	defer stream.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, apierror.Internal("response writer does not support streaming"))
		return
	}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.logger.Error().Err(err).Str("model", target.ModelName).Msg("upstream stream failed")
			break
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error().Err(err).Msg("marshal stream chunk")
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		flusher.Flush()
		if c.Request.Context().Err() != nil {
			return
		}
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()
}
