package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agenthands/cardgraph/internal/core/model"
)

const mentionColumns = `m.id, m.entity_id, m.card_id, m.mention_text, m.source_field, m.text_offset_start,
	m.text_offset_end, m.confidence, m.extraction_method, m.match_strategy, m.created_at`

func scanMention(row rowScanner) (model.Mention, error) {
	var m model.Mention
	var start, end sql.NullInt64
	var created string
	if err := row.Scan(&m.ID, &m.EntityID, &m.CardID, &m.MentionText, &m.SourceField, &start, &end,
		&m.Confidence, &m.ExtractionMethod, &m.MatchStrategy, &created); err != nil {
		return model.Mention{}, err
	}
	m.TextOffsetStart = intPtr(start)
	m.TextOffsetEnd = intPtr(end)
	m.CreatedAt = parseTime(created)
	return m, nil
}

// FindOrCreateMention records that an existing entity is mentioned in a card
// field. A mention with the same entity, card, text and field is reused.
func (q *queries) FindOrCreateMention(ctx context.Context, m model.Mention) (model.Mention, bool, error) {
	if m.EntityID == "" || m.CardID == "" || strings.TrimSpace(m.MentionText) == "" || m.SourceField == "" {
		return model.Mention{}, false, fmt.Errorf("%w: mention needs entity, card, text and field", ErrInvalid)
	}
	if err := model.ValidateOffsets(m.TextOffsetStart, m.TextOffsetEnd); err != nil {
		return model.Mention{}, false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return model.Mention{}, false, fmt.Errorf("%w: mention confidence %v out of range", ErrInvalid, m.Confidence)
	}
	if m.ExtractionMethod == "" {
		m.ExtractionMethod = model.MethodManual
	}

	if found, err := q.findMention(ctx, m); err == nil {
		return found, false, nil
	} else if !isNotFound(err) {
		return model.Mention{}, false, err
	}

	m.ID = q.newID()
	m.CreatedAt = q.now()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO mentions (id, entity_id, card_id, mention_text, source_field, text_offset_start,
			text_offset_end, confidence, extraction_method, match_strategy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.EntityID, m.CardID, m.MentionText, m.SourceField, nullInt(m.TextOffsetStart),
		nullInt(m.TextOffsetEnd), m.Confidence, m.ExtractionMethod, m.MatchStrategy, formatTime(m.CreatedAt))
	if err == nil {
		return m, true, nil
	}
	if isUniqueViolation(err) {
		found, ferr := q.findMention(ctx, m)
		return found, false, ferr
	}
	if isConstraintViolation(err) {
		return model.Mention{}, false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return model.Mention{}, false, err
}

func (q *queries) findMention(ctx context.Context, m model.Mention) (model.Mention, error) {
	found, err := scanMention(q.db.QueryRowContext(ctx, `SELECT `+mentionColumns+` FROM mentions m
		WHERE m.entity_id = ? AND m.card_id = ? AND m.mention_text = ? AND m.source_field = ?`,
		m.EntityID, m.CardID, m.MentionText, m.SourceField))
	if err != nil {
		return model.Mention{}, notFound(err, "mention")
	}
	return found, nil
}

func (q *queries) ListCardMentions(ctx context.Context, cardID string) ([]model.Mention, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+mentionColumns+` FROM mentions m
		WHERE m.card_id = ? ORDER BY m.source_field DESC, m.text_offset_start, m.id`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mentions := []model.Mention{}
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, err
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

var validRoles = map[string]bool{
	model.RoleSource:   true,
	model.RoleEvidence: true,
	model.RoleRelated:  true,
}

// LinkCardFact joins a card to a fact under a role; an existing link is reused.
func (q *queries) LinkCardFact(ctx context.Context, cf model.CardFact) (model.CardFact, bool, error) {
	if cf.CardID == "" || cf.FactID == "" || !validRoles[cf.Role] {
		return model.CardFact{}, false, fmt.Errorf("%w: card fact needs card, fact and a known role", ErrInvalid)
	}
	if err := model.ValidateOffsets(cf.TextOffsetStart, cf.TextOffsetEnd); err != nil {
		return model.CardFact{}, false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if found, err := q.FindCardFact(ctx, cf.CardID, cf.FactID, cf.Role); err == nil {
		return found, false, nil
	} else if !isNotFound(err) {
		return model.CardFact{}, false, err
	}

	cf.ID = q.newID()
	cf.CreatedAt = q.now()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO card_facts (id, card_id, fact_id, role, source_field, text_offset_start, text_offset_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cf.ID, cf.CardID, cf.FactID, cf.Role, cf.SourceField, nullInt(cf.TextOffsetStart),
		nullInt(cf.TextOffsetEnd), formatTime(cf.CreatedAt))
	if err == nil {
		return cf, true, nil
	}
	if isUniqueViolation(err) {
		found, ferr := q.FindCardFact(ctx, cf.CardID, cf.FactID, cf.Role)
		return found, false, ferr
	}
	if isConstraintViolation(err) {
		return model.CardFact{}, false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return model.CardFact{}, false, err
}

func (q *queries) FindCardFact(ctx context.Context, cardID, factID, role string) (model.CardFact, error) {
	var cf model.CardFact
	var start, end sql.NullInt64
	var created string
	err := q.db.QueryRowContext(ctx, `
		SELECT id, card_id, fact_id, role, source_field, text_offset_start, text_offset_end, created_at
		FROM card_facts WHERE card_id = ? AND fact_id = ? AND role = ?`, cardID, factID, role).
		Scan(&cf.ID, &cf.CardID, &cf.FactID, &cf.Role, &cf.SourceField, &start, &end, &created)
	if err != nil {
		return model.CardFact{}, notFound(err, "card fact")
	}
	cf.TextOffsetStart = intPtr(start)
	cf.TextOffsetEnd = intPtr(end)
	cf.CreatedAt = parseTime(created)
	return cf, nil
}

// ListCardFacts returns the distinct facts linked to a card under any role,
// including expired ones.
func (q *queries) ListCardFacts(ctx context.Context, cardID string) ([]model.Fact, error) {
	return q.queryFacts(ctx, `SELECT `+factColumns+` FROM facts f
		WHERE f.id IN (SELECT fact_id FROM card_facts WHERE card_id = ?)
		ORDER BY f.created_at, f.id`, cardID)
}
