package summary

import (
	"context"
	"fmt"

	"github.com/agenthands/cardgraph/internal/core/model"
)

type EntityStore interface {
	GetEntity(ctx context.Context, id string) (model.Entity, error)
	ListEntityFacts(ctx context.Context, entityID string) ([]model.Fact, error)
	UpdateEntityDescription(ctx context.Context, entityID, description string) (model.Entity, error)
}

// Refresh regenerates an entity's description from its current facts and
// stores it.
func (s *Summarizer) Refresh(ctx context.Context, st EntityStore, entityID string) (model.Entity, error) {
	entity, err := st.GetEntity(ctx, entityID)
	if err != nil {
		return model.Entity{}, err
	}
	facts, err := st.ListEntityFacts(ctx, entityID)
	if err != nil {
		return model.Entity{}, fmt.Errorf("list facts: %w", err)
	}

	names := map[string]string{entity.ID: entity.Name}
	for _, f := range facts {
		for _, id := range []string{f.SubjectID, deref(f.ObjectEntityID)} {
			if id == "" {
				continue
			}
			if _, ok := names[id]; ok {
				continue
			}
			other, err := st.GetEntity(ctx, id)
			if err != nil {
				return model.Entity{}, fmt.Errorf("resolve entity %s: %w", id, err)
			}
			names[id] = other.Name
		}
	}

	summary, err := s.SummarizeEntity(ctx, entity, facts, names)
	if err != nil {
		return model.Entity{}, err
	}
	if summary == "" {
		return entity, nil
	}
	return st.UpdateEntityDescription(ctx, entityID, summary)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
