package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// MergeEntities folds absorbed into target: absorbed's name and aliases become
// aliases of target, its facts and mentions are re-pointed, and absorbed is
// deleted. Facts that would duplicate one target already has are dropped and
// their card links moved to the surviving fact.
func (s *Store) MergeEntities(ctx context.Context, targetID, absorbedID string) (model.Entity, error) {
	if targetID == "" || absorbedID == "" || targetID == absorbedID {
		return model.Entity{}, fmt.Errorf("%w: merge needs two distinct entities", ErrInvalid)
	}
	var merged model.Entity
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		merged, err = tx.mergeEntities(ctx, targetID, absorbedID)
		return err
	})
	if err != nil {
		return model.Entity{}, err
	}
	s.logger.Info("merged entities",
		zap.String("target_id", targetID),
		zap.String("absorbed_id", absorbedID))
	return merged, nil
}

func (t *Tx) mergeEntities(ctx context.Context, targetID, absorbedID string) (model.Entity, error) {
	target, err := t.GetEntity(ctx, targetID)
	if err != nil {
		return model.Entity{}, err
	}
	absorbed, err := t.GetEntity(ctx, absorbedID)
	if err != nil {
		return model.Entity{}, err
	}
	if err := t.checkSameBoard(ctx, targetID, absorbedID); err != nil {
		return model.Entity{}, err
	}

	for _, alias := range append([]string{absorbed.Name}, absorbed.Aliases...) {
		if strings.TrimSpace(alias) == "" || strings.EqualFold(alias, target.Name) || target.HasAlias(alias) {
			continue
		}
		target.Aliases = append(target.Aliases, alias)
	}

	facts, err := t.queryFacts(ctx, `SELECT `+factColumns+` FROM facts f
		WHERE f.subject_id = ? OR f.object_entity_id = ?
		ORDER BY f.created_at, f.id`, absorbedID, absorbedID)
	if err != nil {
		return model.Entity{}, err
	}
	for _, f := range facts {
		if err := t.repointFact(ctx, f, absorbedID, targetID); err != nil {
			return model.Entity{}, err
		}
	}

	// Mentions already recorded for target win; the rest move over.
	if _, err := t.db.ExecContext(ctx,
		`UPDATE OR IGNORE mentions SET entity_id = ? WHERE entity_id = ?`, targetID, absorbedID); err != nil {
		return model.Entity{}, fmt.Errorf("move mentions: %w", err)
	}

	if _, err := t.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, absorbedID); err != nil {
		return model.Entity{}, fmt.Errorf("delete absorbed entity: %w", err)
	}

	if target.ExternalID == nil && absorbed.ExternalID != nil {
		if _, err := t.db.ExecContext(ctx,
			`UPDATE entities SET external_id = ?, external_source = ? WHERE id = ?`,
			*absorbed.ExternalID, *absorbed.ExternalSource, targetID); err != nil {
			return model.Entity{}, fmt.Errorf("move external reference: %w", err)
		}
	}
	if absorbed.Confidence > target.Confidence {
		if _, err := t.db.ExecContext(ctx,
			`UPDATE entities SET confidence = ? WHERE id = ?`, absorbed.Confidence, targetID); err != nil {
			return model.Entity{}, err
		}
	}
	if _, err := t.saveAliases(ctx, target); err != nil {
		return model.Entity{}, err
	}
	return t.GetEntity(ctx, targetID)
}

func (t *Tx) repointFact(ctx context.Context, f model.Fact, fromID, toID string) error {
	if f.SubjectID == fromID {
		f.SubjectID = toID
	}
	if f.ObjectEntityID != nil && *f.ObjectEntityID == fromID {
		f.ObjectEntityID = &toID
	}

	selfLoop := f.ObjectEntityID != nil && *f.ObjectEntityID == f.SubjectID
	if selfLoop {
		_, err := t.db.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, f.ID)
		return err
	}

	if !f.Historical() {
		existing, err := t.findActiveFact(ctx, f)
		if err == nil && existing.ID != f.ID {
			if _, err := t.db.ExecContext(ctx,
				`UPDATE OR IGNORE card_facts SET fact_id = ? WHERE fact_id = ?`, existing.ID, f.ID); err != nil {
				return fmt.Errorf("move card links: %w", err)
			}
			_, err := t.db.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, f.ID)
			return err
		}
		if err != nil && !isNotFound(err) {
			return err
		}
	}

	_, err := t.db.ExecContext(ctx,
		`UPDATE facts SET subject_id = ?, object_entity_id = ? WHERE id = ?`,
		f.SubjectID, nullString(f.ObjectEntityID), f.ID)
	if err != nil {
		return fmt.Errorf("re-point fact %s: %w", f.ID, err)
	}
	return nil
}
