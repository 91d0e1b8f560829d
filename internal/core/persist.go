package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/core/extraction"
	"github.com/agenthands/cardgraph/internal/core/infer"
	"github.com/agenthands/cardgraph/internal/core/linking"
	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/core/pattern"
	"github.com/agenthands/cardgraph/internal/store"
)

// CardExternalSource is the external_source of the artifact entity that
// stands in for a card when a fact has no explicit subject.
const CardExternalSource = "card"

const maxCardEntityName = 120

// writer persists one run inside a single transaction. Each item gets its own
// savepoint so a bad item is skipped without losing the rest.
type writer struct {
	tx     *store.Tx
	card   model.Card
	domain model.Domain
	logger *zap.Logger

	byName     map[string]model.Entity
	byAlias    map[string]model.Entity
	cardEntity *model.Entity

	// pending holds entities created inside the current savepoint; they only
	// become visible once it is released.
	pending     []model.Entity
	pendingNew  []model.Entity
	pendingCard *model.Entity

	// spans already covered by a mention of the card, by entity and field.
	spans map[mentionSpan]bool

	entities []model.Entity
	facts    []model.Fact
	mentions []model.Mention
	errors   []string
}

func newWriter(tx *store.Tx, card model.Card, domain model.Domain, known []model.Entity, logger *zap.Logger) *writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &writer{
		tx:      tx,
		card:    card,
		domain:  domain,
		logger:  logger,
		byName:  make(map[string]model.Entity),
		byAlias: make(map[string]model.Entity),
	}
	for _, e := range known {
		for _, a := range e.Aliases {
			if _, taken := w.byAlias[nameKey(a)]; !taken {
				w.byAlias[nameKey(a)] = e
			}
		}
	}
	return w
}

func (w *writer) write(ctx context.Context, pat pattern.Result, links []model.CandidateMention, ai extraction.Result) error {
	for _, e := range append(append([]model.ExtractedEntity{}, pat.Entities...), ai.Entities...) {
		err := w.item(ctx, func() error {
			_, err := w.ensureEntity(ctx, e.Name, e.EntityType, e.Confidence, e.Description)
			return err
		})
		if err != nil {
			w.skip("entity %q: %v", e.Name, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	for _, f := range append(append([]model.ExtractedFact{}, pat.Facts...), ai.Facts...) {
		if err := w.item(ctx, func() error { return w.persistFact(ctx, f) }); err != nil {
			w.skip("fact %s %q: %v", f.Predicate, f.Object, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	existing, err := w.tx.ListCardMentions(ctx, w.card.ID)
	if err != nil {
		return fmt.Errorf("list card mentions: %w", err)
	}
	w.spans = make(map[mentionSpan]bool, len(existing))
	for _, m := range existing {
		if m.TextOffsetStart != nil {
			w.spans[mentionSpan{m.EntityID, m.SourceField, *m.TextOffsetStart}] = true
		}
	}
	for _, m := range w.candidateMentions(pat, links) {
		if err := w.item(ctx, func() error { return w.persistMention(ctx, m) }); err != nil {
			w.skip("mention %q: %v", m.MentionText, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// item runs fn in a savepoint and publishes the entities it created when it
// succeeds.
func (w *writer) item(ctx context.Context, fn func() error) error {
	w.pending, w.pendingNew, w.pendingCard = w.pending[:0], w.pendingNew[:0], nil
	err := w.tx.Savepoint(ctx, fn)
	if err != nil {
		return err
	}
	if w.pendingCard != nil {
		w.cardEntity = w.pendingCard
	}
	for _, e := range w.pending {
		w.byName[nameKey(e.Name)] = e
	}
	w.entities = append(w.entities, w.pendingNew...)
	return nil
}

func (w *writer) skip(format string, args ...any) {
	msg := "persist " + fmt.Sprintf(format, args...)
	w.errors = append(w.errors, msg)
	w.logger.Warn("skipped item", zap.String("card_id", w.card.ID), zap.String("reason", msg))
}

func (w *writer) fill(result *model.ExtractionResult) {
	result.Entities = append(result.Entities, w.entities...)
	result.Facts = append(result.Facts, w.facts...)
	result.Mentions = append(result.Mentions, w.mentions...)
}

func (w *writer) lookup(name string) (model.Entity, bool) {
	key := nameKey(name)
	if e, ok := w.byName[key]; ok {
		return e, true
	}
	for _, e := range w.pending {
		if nameKey(e.Name) == key {
			return e, true
		}
	}
	e, ok := w.byAlias[key]
	return e, ok
}

func (w *writer) ensureEntity(ctx context.Context, name, entityType string, confidence float64, description string) (model.Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Entity{}, fmt.Errorf("%w: empty entity name", store.ErrInvalid)
	}
	if e, ok := w.lookup(name); ok {
		return e, nil
	}
	e, created, err := w.tx.FindOrCreateEntity(ctx, model.Entity{
		DomainID:    w.domain.ID,
		Name:        name,
		EntityType:  infer.Resolve(name, entityType),
		Description: description,
		Confidence:  clampConfidence(confidence),
	})
	if err != nil {
		return model.Entity{}, err
	}
	w.pending = append(w.pending, e)
	if created {
		w.pendingNew = append(w.pendingNew, e)
	}
	return e, nil
}

// cardArtifact finds or creates the entity representing the card itself.
func (w *writer) cardArtifact(ctx context.Context) (model.Entity, error) {
	if w.cardEntity != nil {
		return *w.cardEntity, nil
	}
	if w.pendingCard != nil {
		return *w.pendingCard, nil
	}
	source, id := CardExternalSource, w.card.ID
	candidate := model.Entity{
		DomainID:       w.domain.ID,
		Name:           cardEntityName(w.card),
		EntityType:     model.EntityArtifact,
		Confidence:     model.AuthoritativeConfidence,
		ExternalID:     &id,
		ExternalSource: &source,
	}
	e, created, err := w.tx.FindOrCreateEntity(ctx, candidate)
	if errors.Is(err, store.ErrConflict) {
		candidate.Name = fmt.Sprintf("%s (%s)", candidate.Name, w.card.ID)
		e, created, err = w.tx.FindOrCreateEntity(ctx, candidate)
	}
	if err != nil {
		return model.Entity{}, fmt.Errorf("card entity: %w", err)
	}
	if created {
		w.pendingNew = append(w.pendingNew, e)
	}
	w.pendingCard = &e
	return e, nil
}

func cardEntityName(c model.Card) string {
	name := strings.Join(strings.Fields(c.Title), " ")
	if name == "" {
		return "Card " + c.ID
	}
	if r := []rune(name); len(r) > maxCardEntityName {
		name = strings.TrimSpace(string(r[:maxCardEntityName]))
	}
	return name
}

func (w *writer) persistFact(ctx context.Context, f model.ExtractedFact) error {
	predicate := model.NormalizePredicate(f.Predicate)
	if predicate == "" {
		return fmt.Errorf("%w: empty predicate", store.ErrInvalid)
	}
	object := strings.TrimSpace(f.Object)
	if object == "" {
		return fmt.Errorf("%w: empty object", store.ErrInvalid)
	}

	var subject model.Entity
	var err error
	if strings.TrimSpace(f.Subject) == "" {
		subject, err = w.cardArtifact(ctx)
	} else {
		subject, err = w.ensureEntity(ctx, f.Subject, "", infer.Confidence, "")
	}
	if err != nil {
		return err
	}

	fact := model.Fact{
		DomainID:         w.domain.ID,
		SubjectID:        subject.ID,
		Predicate:        predicate,
		ObjectType:       f.ObjectType,
		Confidence:       clampConfidence(f.Confidence),
		ExtractionMethod: f.Method,
	}
	if fact.ExtractionMethod == "" {
		fact.ExtractionMethod = model.MethodInferred
	}
	if f.ObjectIsEntity {
		obj, err := w.ensureEntity(ctx, object, "", infer.Confidence, "")
		if err != nil {
			return err
		}
		if obj.ID == subject.ID {
			return fmt.Errorf("%w: fact points at its own subject", store.ErrInvalid)
		}
		fact.ObjectEntityID = &obj.ID
		if fact.ObjectType == "" {
			fact.ObjectType = "entity"
		}
	} else {
		fact.ObjectValue = &object
		if fact.ObjectType == "" {
			fact.ObjectType = "text"
		}
	}

	stored, created, err := w.tx.FindOrCreateFact(ctx, fact)
	if err != nil {
		return err
	}

	role := model.RoleSource
	if !created {
		if _, err := w.tx.FindCardFact(ctx, w.card.ID, stored.ID, model.RoleSource); err == nil {
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		role = model.RoleEvidence
	}
	if _, _, err := w.tx.LinkCardFact(ctx, model.CardFact{
		CardID:          w.card.ID,
		FactID:          stored.ID,
		Role:            role,
		SourceField:     f.SourceField,
		TextOffsetStart: f.OffsetStart,
		TextOffsetEnd:   f.OffsetEnd,
	}); err != nil {
		return err
	}
	if created {
		w.facts = append(w.facts, stored)
	}
	return nil
}

// candidateMentions merges linker output with the offsets of pattern
// entities, which are resolved by name once persisted.
func (w *writer) candidateMentions(pat pattern.Result, links []model.CandidateMention) []model.CandidateMention {
	out := make([]model.CandidateMention, 0, len(links)+len(pat.Entities))
	out = append(out, links...)
	for _, e := range pat.Entities {
		if e.OffsetStart == nil || e.OffsetEnd == nil {
			continue
		}
		text := e.MatchedText
		if text == "" {
			text = e.Name
		}
		out = append(out, model.CandidateMention{
			EntityName:  e.Name,
			MentionText: text,
			SourceField: e.SourceField,
			OffsetStart: e.OffsetStart,
			OffsetEnd:   e.OffsetEnd,
			Confidence:  e.Confidence,
			Method:      model.MethodPattern,
		})
	}
	return out
}

func (w *writer) persistMention(ctx context.Context, c model.CandidateMention) error {
	entityID := c.EntityID
	if entityID == "" {
		e, ok := w.lookup(c.EntityName)
		if !ok {
			return fmt.Errorf("%w: entity %q was not persisted", store.ErrNotFound, c.EntityName)
		}
		entityID = e.ID
	}
	var span *mentionSpan
	if c.OffsetStart != nil {
		span = &mentionSpan{entityID, c.SourceField, *c.OffsetStart}
		if w.spans[*span] {
			return nil
		}
	}
	method := c.Method
	if c.Strategy != "" {
		method = linking.PersistedMethod(c.Strategy)
	}
	m, created, err := w.tx.FindOrCreateMention(ctx, model.Mention{
		EntityID:         entityID,
		CardID:           w.card.ID,
		MentionText:      c.MentionText,
		SourceField:      c.SourceField,
		TextOffsetStart:  c.OffsetStart,
		TextOffsetEnd:    c.OffsetEnd,
		Confidence:       clampConfidence(c.Confidence),
		ExtractionMethod: method,
		MatchStrategy:    c.Strategy,
	})
	if err != nil {
		return err
	}
	if span != nil {
		w.spans[*span] = true
	}
	if created {
		w.mentions = append(w.mentions, m)
	}
	return nil
}

type mentionSpan struct {
	entityID string
	field    string
	start    int
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
