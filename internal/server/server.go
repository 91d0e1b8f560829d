// Package server exposes the extraction pipeline and the knowledge store over
// HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/config"
	"github.com/agenthands/cardgraph/internal/core"
	"github.com/agenthands/cardgraph/internal/core/community"
	"github.com/agenthands/cardgraph/internal/core/dedupe"
	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/core/summary"
	"github.com/agenthands/cardgraph/internal/notify"
	"github.com/agenthands/cardgraph/internal/observability"
	"github.com/agenthands/cardgraph/internal/store"
)

// GraphMirror receives edits made outside extraction runs.
type GraphMirror interface {
	FactExpired(ctx context.Context, f model.Fact) error
	EntitiesMerged(ctx context.Context, absorbedID string, target model.Entity, facts []model.Fact) error
}

type Server struct {
	Store      *store.Store
	Pipeline   *core.Pipeline
	Tracker    *notify.Tracker
	Dedupe     *dedupe.Deduplicator // nil when no LLM is configured
	Clusters   *community.Builder
	Summarizer *summary.Summarizer // nil when no LLM is configured
	Graph      GraphMirror         // nil when Memgraph is disabled
	Metrics    *observability.Collector
	Logger     *zap.Logger

	ReviewThreshold float64
	BulkLimit       int

	jobs   sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Server)

func WithReconciler(d *dedupe.Deduplicator) Option {
	return func(s *Server) { s.Dedupe = d }
}

func WithSummarizer(sum *summary.Summarizer) Option {
	return func(s *Server) { s.Summarizer = sum }
}

func WithGraphMirror(g GraphMirror) Option {
	return func(s *Server) { s.Graph = g }
}

func WithMetrics(m *observability.Collector) Option {
	return func(s *Server) { s.Metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.Logger = l }
}

func NewServer(st *store.Store, pipeline *core.Pipeline, tracker *notify.Tracker, cfg *config.Config, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Store:           st,
		Pipeline:        pipeline,
		Tracker:         tracker,
		Logger:          zap.NewNop(),
		ReviewThreshold: cfg.Extraction.ReviewThreshold,
		BulkLimit:       cfg.Concurrency.BulkIngest,
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Clusters == nil {
		var describer community.Describer
		if s.Summarizer != nil {
			describer = s.Summarizer
		}
		s.Clusters = community.NewBuilder(nil, describer, s.Logger)
	}
	return s
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if s.Metrics != nil {
		r.Use(s.instrument())
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	r.GET("/health", s.Health)

	r.PUT("/cards/:id", s.UpsertCard)
	r.POST("/cards/:id/extract", s.ExtractCard)
	r.GET("/cards/:id/extraction", s.ExtractionStatus)
	r.GET("/cards/:id/knowledge", s.CardKnowledge)

	r.POST("/boards/:id/extract", s.ExtractBoard)
	r.GET("/boards/:id/entities", s.BoardEntities)
	r.GET("/boards/:id/facts", s.BoardFacts)
	r.GET("/boards/:id/review", s.ReviewQueue)
	r.GET("/boards/:id/clusters", s.BoardClusters)
	r.POST("/boards/:id/reconcile", s.ReconcileBoard)
	r.POST("/boards/:id/entities/merge", s.MergeEntities)

	r.POST("/entities/:id/aliases", s.AddAlias)
	r.POST("/entities/:id/summarize", s.SummarizeEntity)
	r.DELETE("/facts/:id", s.ExpireFact)

	return r
}

// Shutdown cancels background extraction jobs and waits for them to stop or
// for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.Metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// fail maps store and pipeline errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, core.ErrCardNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrConflict), errors.Is(err, notify.ErrJobRunning):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
