// Package httpserver exposes the gateway's HTTP API on gin.
package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"openresponses.ai/gateway/internal/config"
	"openresponses.ai/gateway/internal/infrastructure/metrics"
)

// Handlers bundles the route handlers the server mounts.
type Handlers struct {
	Responses    *ResponsesHandler
	Chat         *ChatHandler
	Embeddings   *EmbeddingsHandler
	Files        *FilesHandler
	VectorStores *VectorStoresHandler
}

// HTTPServer wraps the gin engine with graceful shutdown helpers.
type HTTPServer struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
}

// New constructs the HTTP server with default middleware and routes.
func New(cfg *config.Config, log zerolog.Logger, handlers Handlers, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())

	registerPublicRoutes(engine, cfg, gatherer)

	v1 := engine.Group("/v1", requireBearer(), traceHeader(), measure(m))

	v1.POST("/responses", handlers.Responses.Create)
	v1.GET("/responses/:id", handlers.Responses.Get)
	v1.DELETE("/responses/:id", handlers.Responses.Delete)
	v1.GET("/responses/:id/input_items", handlers.Responses.ListInputItems)
	v1.POST("/responses/:id/cancel", handlers.Responses.Cancel)

	v1.POST("/chat/completions", handlers.Chat.Create)
	v1.POST("/embeddings", handlers.Embeddings.Create)

	v1.POST("/files", handlers.Files.Upload)
	v1.GET("/files", handlers.Files.List)
	v1.GET("/files/:id", handlers.Files.Get)
	v1.DELETE("/files/:id", handlers.Files.Delete)
	v1.GET("/files/:id/content", handlers.Files.Content)

	v1.POST("/vector_stores", handlers.VectorStores.Create)
	v1.GET("/vector_stores", handlers.VectorStores.List)
	v1.GET("/vector_stores/:id", handlers.VectorStores.Get)
	v1.POST("/vector_stores/:id", handlers.VectorStores.Update)
	v1.DELETE("/vector_stores/:id", handlers.VectorStores.Delete)
	v1.POST("/vector_stores/:id/search", handlers.VectorStores.Search)
	v1.POST("/vector_stores/:id/files", handlers.VectorStores.AttachFile)
	v1.GET("/vector_stores/:id/files", handlers.VectorStores.ListFiles)
	v1.GET("/vector_stores/:id/files/:file_id", handlers.VectorStores.GetFile)
	v1.POST("/vector_stores/:id/files/:file_id", handlers.VectorStores.UpdateFile)
	v1.DELETE("/vector_stores/:id/files/:file_id", handlers.VectorStores.DetachFile)

	return &HTTPServer{cfg: cfg, engine: engine, log: log}
}

// Engine exposes the router, used by tests.
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP listener and handles graceful shutdown via context
// cancellation.
func (s *HTTPServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("Context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func registerPublicRoutes(engine *gin.Engine, cfg *config.Config, gatherer prometheus.Gatherer) {
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": cfg.ServiceName,
			"status":  "ok",
		})
	})
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	engine.GET("/readyz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
