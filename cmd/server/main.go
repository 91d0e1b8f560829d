package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/config"
	"github.com/agenthands/cardgraph/internal/core"
	"github.com/agenthands/cardgraph/internal/core/dedupe"
	"github.com/agenthands/cardgraph/internal/core/extraction"
	"github.com/agenthands/cardgraph/internal/core/linking"
	"github.com/agenthands/cardgraph/internal/core/summary"
	"github.com/agenthands/cardgraph/internal/driver"
	"github.com/agenthands/cardgraph/internal/llm"
	"github.com/agenthands/cardgraph/internal/notify"
	"github.com/agenthands/cardgraph/internal/observability"
	"github.com/agenthands/cardgraph/internal/server"
	"github.com/agenthands/cardgraph/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfg := config.Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Fatal(err)
	}

	logger, err := config.NewLogger(cfg.Server.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := store.Open(ctx, cfg.Store.Path, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer st.Close()

	metrics := observability.NewCollector("cardgraph")
	tracker := notify.NewTracker()
	notifiers := notify.Fanout{tracker}

	var projector *driver.Projector
	if cfg.Memgraph.Enabled {
		graph, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, logger)
		if err != nil {
			return err
		}
		defer graph.Close(context.Background())
		if err := graph.BuildIndices(ctx); err != nil {
			logger.Warn("memgraph indices", zap.Error(err))
		}
		projector = driver.NewProjector(graph, logger)
		notifiers = append(notifiers, projector)
	}

	pipelineOpts := []core.Option{
		core.WithNotifier(notifiers),
		core.WithObserver(metrics),
		core.WithLogger(logger),
		core.WithLinker(linking.NewLinker(linking.Config{
			FuzzyThreshold: cfg.Extraction.FuzzyThreshold,
			MinTokenLength: cfg.Extraction.MinTokenLength,
		})),
	}
	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(metrics),
	}
	if projector != nil {
		serverOpts = append(serverOpts, server.WithGraphMirror(projector))
	}

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		logger.Warn("LLM disabled", zap.Error(err))
	} else {
		router := llm.NewRouter(client, cfg.LLM.Provider, cfg.LLM.Timeout(), cfg.Breaker,
			llm.WithObserver(metrics), llm.WithLogger(logger))
		extractor, err := extraction.NewExtractor(router, cfg.Prompts.Extraction, cfg.Extraction, cfg.LLM.Timeout())
		if err != nil {
			return err
		}
		pipelineOpts = append(pipelineOpts, core.WithLLM(extractor, extraction.PolicyFromConfig(cfg.Extraction)))
		serverOpts = append(serverOpts,
			server.WithReconciler(dedupe.NewDeduplicator(router, cfg.Prompts, cfg.Extraction.MergeConfidence)),
			server.WithSummarizer(summary.NewSummarizer(router, cfg.Prompts)))
	}

	pipeline := core.NewPipeline(st, st, pipelineOpts...)
	srv := server.NewServer(st, pipeline, tracker, cfg, serverOpts...)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.SetupRouter(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port), zap.String("llm_provider", cfg.LLM.Provider))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return srv.Shutdown(shutdownCtx)
}
