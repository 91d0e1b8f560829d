package dedupe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// Store is the persistence the reconciler reads and rewrites.
type Store interface {
	ListBoardEntities(ctx context.Context, boardID string) ([]model.Entity, error)
	ListBoardFacts(ctx context.Context, boardID string, includeExpired bool) ([]model.Fact, error)
	MergeEntities(ctx context.Context, targetID, absorbedID string) (model.Entity, error)
	ExpireFact(ctx context.Context, id string) (model.Fact, error)
}

type Report struct {
	BoardID string                `json:"board_id"`
	Merged  []model.DuplicatePair `json:"merged"`
	Expired []string              `json:"expired_fact_ids"`
	Errors  []string              `json:"errors"`
}

// Reconcile merges duplicate entities and then expires contradicted facts on
// one board. LLM failures are reported in the Report; only store reads fail
// the call.
func (d *Deduplicator) Reconcile(ctx context.Context, st Store, boardID string) (*Report, error) {
	report := &Report{
		BoardID: boardID,
		Merged:  []model.DuplicatePair{},
		Expired: []string{},
		Errors:  []string{},
	}
	log := d.Logger.With(zap.String("board_id", boardID))

	entities, err := st.ListBoardEntities(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	if hasInferred(entities) {
		pairs, err := d.ResolveDuplicates(ctx, entities)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
		absorbed := make(map[string]bool)
		for _, p := range pairs {
			if p.Confidence < d.MergeConfidence || absorbed[p.OriginalID] || absorbed[p.DuplicateID] {
				continue
			}
			if _, err := st.MergeEntities(ctx, p.OriginalID, p.DuplicateID); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("merge %s into %s: %v", p.DuplicateID, p.OriginalID, err))
				continue
			}
			absorbed[p.DuplicateID] = true
			report.Merged = append(report.Merged, p)
		}
		if len(report.Merged) > 0 {
			if entities, err = st.ListBoardEntities(ctx, boardID); err != nil {
				return nil, fmt.Errorf("list entities: %w", err)
			}
		}
	}

	facts, err := st.ListBoardFacts(ctx, boardID, false)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	names := make(map[string]string, len(entities))
	for _, e := range entities {
		names[e.ID] = e.Name
	}
	for _, group := range singleValuedGroups(facts) {
		ids, err := d.ResolveContradictions(ctx, group, names)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		for _, id := range ids {
			if _, err := st.ExpireFact(ctx, id); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("expire fact %s: %v", id, err))
				continue
			}
			report.Expired = append(report.Expired, id)
		}
	}

	log.Info("board reconciled",
		zap.Int("merged", len(report.Merged)),
		zap.Int("expired", len(report.Expired)),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

func hasInferred(entities []model.Entity) bool {
	for _, e := range entities {
		if e.Inferred() {
			return true
		}
	}
	return false
}
