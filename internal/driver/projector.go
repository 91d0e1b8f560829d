package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// Projector mirrors rows created by extraction runs and later edits into the
// graph. It is registered as a pipeline notifier, so projection failures
// never fail a run.
type Projector struct {
	Driver GraphDriver
	Logger *zap.Logger
}

func NewProjector(d GraphDriver, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{Driver: d, Logger: logger}
}

func (p *Projector) Progress(ctx context.Context, _ model.Progress) error {
	return nil
}

// Complete projects a finished run. Entities go first so facts and mentions
// can match their endpoints.
func (p *Projector) Complete(ctx context.Context, cardID string, result *model.ExtractionResult) error {
	if result == nil {
		return nil
	}
	var errs []error
	for _, e := range result.Entities {
		errs = append(errs, p.saveEntity(ctx, e))
	}
	for _, f := range result.Facts {
		errs = append(errs, p.saveFact(ctx, f))
	}
	for _, m := range result.Mentions {
		errs = append(errs, p.saveMention(ctx, m))
	}
	if err := errors.Join(errs...); err != nil {
		p.Logger.Warn("graph projection incomplete", zap.String("card_id", cardID), zap.Error(err))
		return err
	}
	p.Logger.Debug("graph projection done", zap.String("card_id", cardID),
		zap.Int("entities", len(result.Entities)), zap.Int("facts", len(result.Facts)))
	return nil
}

func (p *Projector) FactExpired(ctx context.Context, f model.Fact) error {
	until := ""
	if f.ValidUntil != nil {
		until = f.ValidUntil.UTC().Format(time.RFC3339)
	}
	_, err := p.Driver.ExecuteQuery(ctx, ExpireFactQuery, map[string]interface{}{
		"id":          f.ID,
		"valid_until": until,
	})
	if err != nil {
		return fmt.Errorf("project fact expiry %s: %w", f.ID, err)
	}
	return nil
}

// EntitiesMerged drops the absorbed node and re-projects the surviving entity
// with the facts it now carries.
func (p *Projector) EntitiesMerged(ctx context.Context, absorbedID string, target model.Entity, facts []model.Fact) error {
	if _, err := p.Driver.ExecuteQuery(ctx, DeleteEntityQuery, map[string]interface{}{"id": absorbedID}); err != nil {
		return fmt.Errorf("project merge of %s: %w", absorbedID, err)
	}
	errs := []error{p.saveEntity(ctx, target)}
	for _, f := range facts {
		errs = append(errs, p.saveFact(ctx, f))
	}
	return errors.Join(errs...)
}

func (p *Projector) saveEntity(ctx context.Context, e model.Entity) error {
	aliases := e.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	_, err := p.Driver.ExecuteQuery(ctx, SaveEntityQuery, map[string]interface{}{
		"id":          e.ID,
		"name":        e.Name,
		"domain_id":   e.DomainID,
		"entity_type": e.EntityType,
		"aliases":     aliases,
		"description": e.Description,
		"confidence":  e.Confidence,
		"created_at":  e.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("project entity %s: %w", e.ID, err)
	}
	return nil
}

func (p *Projector) saveFact(ctx context.Context, f model.Fact) error {
	validFrom := ""
	if f.ValidFrom != nil {
		validFrom = f.ValidFrom.UTC().Format(time.RFC3339)
	}
	params := map[string]interface{}{
		"id":         f.ID,
		"subject_id": f.SubjectID,
		"predicate":  f.Predicate,
		"confidence": f.Confidence,
		"method":     f.ExtractionMethod,
		"negated":    f.Negated,
		"valid_from": validFrom,
	}
	query := SaveEntityFactQuery
	switch {
	case f.ObjectEntityID != nil:
		params["object_id"] = *f.ObjectEntityID
	case f.ObjectValue != nil:
		query = SaveValueFactQuery
		params["value"] = *f.ObjectValue
		params["object_type"] = f.ObjectType
	default:
		return fmt.Errorf("project fact %s: %w", f.ID, model.ErrFactObjectMissing)
	}
	if _, err := p.Driver.ExecuteQuery(ctx, query, params); err != nil {
		return fmt.Errorf("project fact %s: %w", f.ID, err)
	}
	return nil
}

func (p *Projector) saveMention(ctx context.Context, m model.Mention) error {
	_, err := p.Driver.ExecuteQuery(ctx, SaveMentionQuery, map[string]interface{}{
		"id":           m.ID,
		"card_id":      m.CardID,
		"entity_id":    m.EntityID,
		"text":         m.MentionText,
		"source_field": m.SourceField,
		"confidence":   m.Confidence,
		"method":       m.ExtractionMethod,
	})
	if err != nil {
		return fmt.Errorf("project mention %s: %w", m.ID, err)
	}
	return nil
}
