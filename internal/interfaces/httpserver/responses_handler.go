package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/responses"
	"openresponses.ai/gateway/internal/infrastructure/metrics"
)

// streamBuffer bounds the event channel between the orchestration loop and
// the SSE writer. A full buffer blocks the loop until the client drains it.
const streamBuffer = 64

// ResponsesHandler serves the /v1/responses surface.
type ResponsesHandler struct {
	orchestrator *responses.Orchestrator
	store        responses.Store
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// NewResponsesHandler creates a ResponsesHandler.
func NewResponsesHandler(orchestrator *responses.Orchestrator, store responses.Store, m *metrics.Metrics, logger zerolog.Logger) *ResponsesHandler {
	return &ResponsesHandler{
		orchestrator: orchestrator,
		store:        store,
		metrics:      m,
		logger:       logger.With().Str("component", "responses-handler").Logger(),
	}
}

// Create handles POST /v1/responses, streaming or buffered.
func (h *ResponsesHandler) Create(c *gin.Context) {
	var req responses.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, err)
		return
	}

	if req.Stream {
		h.stream(c, &req)
		return
	}

	resp, err := h.orchestrator.Create(c.Request.Context(), &req, c.Request.Header)
	if err != nil {
		writeError(c, err)
		return
	}
	if resp.Usage != nil {
		h.metrics.TokensTotal.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
		h.metrics.TokensTotal.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ResponsesHandler) stream(c *gin.Context, req *responses.Request) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, apierror.Internal("response writer does not support streaming"))
		return
	}

	ctx := c.Request.Context()
	events := make(chan responses.Event, streamBuffer)
	go func() {
		defer close(events)
		err := h.orchestrator.Stream(ctx, req, c.Request.Header, func(event responses.Event) error {
			select {
			case events <- event:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			h.logger.Error().Err(err).Msg("stream aborted before first event")
		}
	}()

	for event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			h.logger.Error().Err(err).Str("event", event.Type).Msg("marshal stream event")
			continue
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, data)
		flusher.Flush()
		if ctx.Err() != nil {
			return
		}
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()
}

// Get handles GET /v1/responses/:id.
func (h *ResponsesHandler) Get(c *gin.Context) {
	record, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record.Response)
}

// Delete handles DELETE /v1/responses/:id. Deleting an absent response
// still reports deleted.
func (h *ResponsesHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"object":  "response.deleted",
		"deleted": true,
	})
}

// ListInputItems handles GET /v1/responses/:id/input_items.
func (h *ResponsesHandler) ListInputItems(c *gin.Context) {
	params := responses.ListInputItemsParams{
		Order:  c.Query("order"),
		After:  c.Query("after"),
		Before: c.Query("before"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, apierror.Validation("limit must be an integer"))
			return
		}
		params.Limit = limit
	}

	page, err := h.store.ListInputItems(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"object":   "list",
		"data":     page.Data,
		"first_id": page.FirstID,
		"last_id":  page.LastID,
		"has_more": page.HasMore,
	})
}

// Cancel handles POST /v1/responses/:id/cancel. Cancelling a finished or
// unknown response is a no-op returning its stored state when available.
func (h *ResponsesHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if h.orchestrator.Cancel(id) {
		c.JSON(http.StatusOK, gin.H{"id": id, "object": "response", "status": "cancelled"})
		return
	}
	record, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record.Response)
}
