package httpserver

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/llm"
	"openresponses.ai/gateway/internal/infrastructure/metrics"
)

const (
	headerRequestID = "X-Request-Id"
	headerB3Trace   = "X-B3-TraceId"
)

// requestID assigns each request an id, echoed back to the caller.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// traceHeader surfaces the caller's B3 trace id on the active span.
func traceHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if traceID := c.GetHeader(headerB3Trace); traceID != "" {
			span := trace.SpanFromContext(c.Request.Context())
			span.SetAttributes(attribute.String("b3.trace_id", traceID))
		}
		c.Next()
	}
}

// requireBearer rejects requests without a bearer token and threads the
// token through the request context for verbatim upstream forwarding.
func requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || !strings.HasPrefix(header, "Bearer ") {
			writeError(c, apierror.Authentication("missing bearer token"))
			return
		}
		ctx := llm.ContextWithAuthToken(c.Request.Context(), header)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// measure records request count and latency per route.
func measure(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
