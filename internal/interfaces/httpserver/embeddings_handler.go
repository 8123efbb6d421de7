package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/infrastructure/embeddings"
	"openresponses.ai/gateway/internal/infrastructure/metrics"
)

// TokenCounter counts tokens the way the chunker does, used to fill in
// usage when the upstream embedding service omits it.
type TokenCounter interface {
	CountTokens(text string) int
}

// EmbeddingsHandler proxies /v1/embeddings to the configured embedding
// service, accounting tokens locally.
type EmbeddingsHandler struct {
	client  *embeddings.Client
	counter TokenCounter
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewEmbeddingsHandler creates an EmbeddingsHandler.
func NewEmbeddingsHandler(client *embeddings.Client, counter TokenCounter, m *metrics.Metrics, logger zerolog.Logger) *EmbeddingsHandler {
	return &EmbeddingsHandler{
		client:  client,
		counter: counter,
		metrics: m,
		logger:  logger.With().Str("component", "embeddings-handler").Logger(),
	}
}

// Create handles POST /v1/embeddings.
func (h *EmbeddingsHandler) Create(c *gin.Context) {
	var req embeddings.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}

	texts, err := inputTexts(req.Input)
	if err != nil {
		writeError(c, err)
		return
	}
	switch req.EncodingFormat {
	case "", "float", "base64":
	default:
		writeError(c, apierror.Validation("unsupported encoding_format %q", req.EncodingFormat))
		return
	}

	resp, err := h.client.CreateEmbeddings(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	if resp.Usage.PromptTokens == 0 && h.counter != nil {
		tokens := 0
		for _, text := range texts {
			tokens += h.counter.CountTokens(text)
		}
		resp.Usage = embeddings.Usage{PromptTokens: tokens, TotalTokens: tokens}
	}
	h.metrics.TokensTotal.WithLabelValues("input").Add(float64(resp.Usage.PromptTokens))

	c.JSON(http.StatusOK, resp)
}

// inputTexts normalizes the polymorphic input field to a string slice.
func inputTexts(input any) ([]string, error) {
	switch v := input.(type) {
	case string:
		if v == "" {
			return nil, apierror.Validation("input must not be empty")
		}
		return []string{v}, nil
	case []any:
		if len(v) == 0 {
			return nil, apierror.Validation("input must not be empty")
		}
		texts := make([]string, 0, len(v))
		for _, entry := range v {
			text, ok := entry.(string)
			if !ok {
				return nil, apierror.Validation("input entries must be strings")
			}
			texts = append(texts, text)
		}
		return texts, nil
	default:
		return nil, apierror.Validation("input must be a string or an array of strings")
	}
}
