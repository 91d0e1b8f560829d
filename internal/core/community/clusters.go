package community

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/core/model"
)

type GraphSource interface {
	ListBoardEntities(ctx context.Context, boardID string) ([]model.Entity, error)
	ListEdges(ctx context.Context, boardID string) ([]model.Edge, error)
}

// Describer writes a summary and a label for a cluster. It is optional.
type Describer interface {
	SummarizeCluster(ctx context.Context, members []model.Entity) (string, error)
	NameCluster(ctx context.Context, summary string) (string, error)
}

type Builder struct {
	Detector  CommunityDetector
	Describer Describer
	Logger    *zap.Logger
}

func NewBuilder(detector CommunityDetector, describer Describer, logger *zap.Logger) *Builder {
	if detector == nil {
		detector = NewDefaultDetector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{Detector: detector, Describer: describer, Logger: logger}
}

// Build detects the clusters of a board. Without a Describer, or when it
// fails, a cluster is labelled after its most connected entity.
func (b *Builder) Build(ctx context.Context, src GraphSource, boardID string) ([]model.Cluster, error) {
	entities, err := src.ListBoardEntities(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	edges, err := src.ListEdges(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	groups, err := b.Detector.Detect(entities, edges)
	if err != nil {
		return nil, fmt.Errorf("detect communities: %w", err)
	}

	clusters := make([]model.Cluster, 0, len(groups))
	for _, members := range groups {
		c := model.Cluster{Label: members[0].Name, Entities: members}
		if b.Describer != nil {
			b.describe(ctx, &c)
		}
		clusters = append(clusters, c)
	}
	return clusters, nil
}

func (b *Builder) describe(ctx context.Context, c *model.Cluster) {
	summary, err := b.Describer.SummarizeCluster(ctx, c.Entities)
	if err != nil {
		b.Logger.Warn("cluster summary failed", zap.String("cluster", c.Label), zap.Error(err))
		return
	}
	c.Summary = summary
	label, err := b.Describer.NameCluster(ctx, summary)
	if err != nil {
		b.Logger.Warn("cluster naming failed", zap.String("cluster", c.Label), zap.Error(err))
		return
	}
	if label != "" {
		c.Label = label
	}
}
