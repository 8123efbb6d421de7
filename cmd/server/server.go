// Command server runs the responses gateway.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"openresponses.ai/gateway/internal/config"
	"openresponses.ai/gateway/internal/domain/responses"
	"openresponses.ai/gateway/internal/domain/tool"
	"openresponses.ai/gateway/internal/domain/vectorstore"
	"openresponses.ai/gateway/internal/infrastructure/database"
	"openresponses.ai/gateway/internal/infrastructure/embeddings"
	"openresponses.ai/gateway/internal/infrastructure/imagegen"
	"openresponses.ai/gateway/internal/infrastructure/llmprovider"
	"openresponses.ai/gateway/internal/infrastructure/logger"
	"openresponses.ai/gateway/internal/infrastructure/mcp"
	"openresponses.ai/gateway/internal/infrastructure/metrics"
	"openresponses.ai/gateway/internal/infrastructure/observability"
	"openresponses.ai/gateway/internal/infrastructure/repository/responserepo"
	"openresponses.ai/gateway/internal/infrastructure/repository/vectorstorerepo"
	"openresponses.ai/gateway/internal/infrastructure/sandbox"
	"openresponses.ai/gateway/internal/infrastructure/storage"
	"openresponses.ai/gateway/internal/infrastructure/vectorindex"
	"openresponses.ai/gateway/internal/interfaces/httpserver"
	"openresponses.ai/gateway/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.EnableTracing {
		otelShutdown, err := observability.Setup(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
		if err != nil {
			log.Error().Err(err).Msg("initialize observability")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := otelShutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("shutdown telemetry")
				}
			}()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	files, err := storage.NewLocal(cfg.FileStorageDir)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize file storage")
	}

	chunker, err := vectorindex.NewTokenChunker()
	if err != nil {
		log.Fatal().Err(err).Msg("initialize chunker")
	}
	embedder := embeddings.NewClient(cfg.EmbeddingsBaseURL, cfg.EmbeddingsAPIKey, cfg.EmbeddingsModel, cfg.RequestTimeout)

	var semantic vectorstore.SemanticIndex
	switch cfg.VectorBackend {
	case "qdrant":
		index, err := vectorindex.NewQdrantIndex(cfg.QdrantAddr, cfg.QdrantAPIKey, log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect qdrant")
		}
		semantic = index
	default:
		index, err := vectorindex.NewMemoryIndex(cfg.VectorDataDir, log)
		if err != nil {
			log.Fatal().Err(err).Msg("initialize vector index")
		}
		semantic = index
	}
	lexical := vectorindex.NewLexicalMemoryIndex()

	provider := llmprovider.NewClient(cfg.RequestTimeout)
	router := llmprovider.NewRouter(cfg.OpenAIBaseURL)

	var (
		reranker vectorstore.Reranker
		rewriter vectorstore.Rewriter
	)
	if cfg.UtilityModel != "" {
		target, err := router.Resolve(cfg.UtilityModel, nil)
		if err != nil {
			log.Fatal().Err(err).Str("model", cfg.UtilityModel).Msg("resolve utility model")
		}
		reranker = vectorstore.NewLLMReranker(provider, target)
		rewriter = vectorstore.NewLLMRewriter(provider, target)
	}

	pool := worker.NewPool(cfg.IndexWorkers, log)
	pool.Start()
	defer pool.Stop()

	vectorService := vectorstore.NewService(
		vectorstorerepo.NewMemory(),
		semantic,
		lexical,
		embedder,
		chunker,
		files,
		reranker,
		rewriter,
		pool,
		log,
	).WithIndexObserver(func(outcome string) {
		m.IndexedFilesTotal.WithLabelValues(outcome).Inc()
	})

	var responseStore responses.Store
	switch cfg.ResponseStoreBackend {
	case "postgres":
		db, err := database.NewPostgres(cfg.DatabaseURL, database.Options{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnLifetime,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("connect database")
		}
		store, err := responserepo.NewPostgres(db)
		if err != nil {
			log.Fatal().Err(err).Msg("migrate response store")
		}
		responseStore = store
	default:
		responseStore = responserepo.NewMemory()
	}

	base := tool.NewRegistry()
	base.Register(tool.NewThink())
	if cfg.PythonSandboxURL != "" {
		base.Register(tool.NewPython(sandbox.NewPythonClient(cfg.PythonSandboxURL, cfg.ToolTimeout)))
	}
	if cfg.ImageGenBaseURL != "" {
		base.Register(tool.NewImageGeneration(imagegen.NewClient(cfg.ImageGenBaseURL, cfg.ImageGenAPIKey, cfg.RequestTimeout)))
	}

	servers, err := cfg.MCPServerList()
	if err != nil {
		log.Fatal().Err(err).Msg("parse MCP_SERVERS")
	}
	if len(servers) > 0 {
		clients := make([]*mcp.Client, 0, len(servers))
		for _, server := range servers {
			clients = append(clients, mcp.NewClient(server.Label, server.URL, cfg.ToolTimeout))
		}
		discoveryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		mcp.NewToolset(clients, log).RegisterAll(discoveryCtx, base)
		cancel()
	}

	recorder := metrics.NewRecorder(m, nil)
	if cfg.EnableTracing {
		recorder = metrics.NewRecorder(m, observability.NewTracer())
	}
	var tracer responses.Tracer = recorder

	orchestrator := responses.NewOrchestrator(
		provider,
		router,
		responseStore,
		base,
		vectorService,
		mcp.NewConnector(cfg.ToolTimeout),
		tracer,
		cfg.MaxToolTurns,
		cfg.ToolTimeout,
		log,
	)

	server := httpserver.New(cfg, log, httpserver.Handlers{
		Responses:    httpserver.NewResponsesHandler(orchestrator, responseStore, m, log),
		Chat:         httpserver.NewChatHandler(provider, router, log),
		Embeddings:   httpserver.NewEmbeddingsHandler(embedder, chunker, m, log),
		Files:        httpserver.NewFilesHandler(files, log),
		VectorStores: httpserver.NewVectorStoresHandler(vectorService, log),
	}, m, registry)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(groupCtx)
	})
	if !cfg.DisableBackgroundJobs {
		sweeper := worker.NewSweeper(vectorService, cfg.ExpirySweepSpec, log)
		group.Go(func() error {
			return sweeper.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
	log.Info().Msg("gateway stopped")
}
