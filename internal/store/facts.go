package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/agenthands/cardgraph/internal/core/model"
)

const factColumns = `f.id, f.domain_id, f.subject_id, f.predicate, f.object_entity_id, f.object_value,
	f.object_type, f.confidence, f.extraction_method, f.negated, f.valid_from, f.valid_until, f.created_at`

func scanFact(row rowScanner) (model.Fact, error) {
	var f model.Fact
	var objEntity, objValue, validUntil sql.NullString
	var validFrom, created string
	if err := row.Scan(&f.ID, &f.DomainID, &f.SubjectID, &f.Predicate, &objEntity, &objValue,
		&f.ObjectType, &f.Confidence, &f.ExtractionMethod, &f.Negated, &validFrom, &validUntil, &created); err != nil {
		return model.Fact{}, err
	}
	f.ObjectEntityID = stringPtr(objEntity)
	f.ObjectValue = stringPtr(objValue)
	from := parseTime(validFrom)
	f.ValidFrom = &from
	f.ValidUntil = timePtr(validUntil)
	f.CreatedAt = parseTime(created)
	return f, nil
}

func (q *queries) queryFacts(ctx context.Context, query string, args ...any) ([]model.Fact, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := []model.Fact{}
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (q *queries) GetFact(ctx context.Context, id string) (model.Fact, error) {
	f, err := scanFact(q.db.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts f WHERE f.id = ?`, id))
	if err != nil {
		return model.Fact{}, notFound(err, "fact "+id)
	}
	return f, nil
}

// FindOrCreateFact returns the currently valid fact with f's triple, creating
// it when none exists. Expired facts never match, so a triple may be asserted
// again after it was expired.
func (q *queries) FindOrCreateFact(ctx context.Context, f model.Fact) (model.Fact, bool, error) {
	f.Predicate = strings.TrimSpace(f.Predicate)
	if f.ObjectEntityID != nil && *f.ObjectEntityID == "" {
		f.ObjectEntityID = nil
	}
	if err := f.Validate(); err != nil {
		return model.Fact{}, false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if f.DomainID == "" || f.SubjectID == "" || f.Predicate == "" {
		return model.Fact{}, false, fmt.Errorf("%w: fact needs domain, subject and predicate", ErrInvalid)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return model.Fact{}, false, fmt.Errorf("%w: fact confidence %v out of range", ErrInvalid, f.Confidence)
	}
	if f.ExtractionMethod == "" {
		f.ExtractionMethod = model.MethodManual
	}
	if f.ObjectEntityID != nil {
		if err := q.checkSameBoard(ctx, f.SubjectID, *f.ObjectEntityID); err != nil {
			return model.Fact{}, false, err
		}
	}

	if found, err := q.findActiveFact(ctx, f); err == nil {
		return found, false, nil
	} else if !isNotFound(err) {
		return model.Fact{}, false, err
	}

	created, err := q.insertFact(ctx, f)
	if err == nil {
		return created, true, nil
	}
	if isUniqueViolation(err) {
		found, ferr := q.findActiveFact(ctx, f)
		return found, false, ferr
	}
	return model.Fact{}, false, err
}

func (q *queries) checkSameBoard(ctx context.Context, subjectID, objectID string) error {
	var subjectBoard, objectBoard string
	err := q.db.QueryRowContext(ctx, `
		SELECT dsub.board_id, dobj.board_id
		FROM entities s JOIN domains dsub ON dsub.id = s.domain_id,
		     entities o JOIN domains dobj ON dobj.id = o.domain_id
		WHERE s.id = ? AND o.id = ?`, subjectID, objectID).Scan(&subjectBoard, &objectBoard)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: unknown subject or object entity", ErrInvalid)
	}
	if err != nil {
		return err
	}
	if subjectBoard != objectBoard {
		return fmt.Errorf("%w: subject and object belong to different boards", ErrInvalid)
	}
	return nil
}

func (q *queries) findActiveFact(ctx context.Context, f model.Fact) (model.Fact, error) {
	var row *sql.Row
	if f.ObjectEntityID != nil {
		row = q.db.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts f
			WHERE f.domain_id = ? AND f.subject_id = ? AND f.predicate = ?
			  AND f.object_entity_id = ? AND f.valid_until IS NULL`,
			f.DomainID, f.SubjectID, f.Predicate, *f.ObjectEntityID)
	} else {
		row = q.db.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts f
			WHERE f.domain_id = ? AND f.subject_id = ? AND f.predicate = ?
			  AND f.object_value = ? AND f.valid_until IS NULL`,
			f.DomainID, f.SubjectID, f.Predicate, *f.ObjectValue)
	}
	found, err := scanFact(row)
	if err != nil {
		return model.Fact{}, notFound(err, "fact")
	}
	return found, nil
}

func (q *queries) insertFact(ctx context.Context, f model.Fact) (model.Fact, error) {
	now := q.now()
	f.ID = q.newID()
	f.CreatedAt = now
	if f.ValidFrom == nil {
		f.ValidFrom = &now
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO facts (id, domain_id, subject_id, predicate, object_entity_id, object_value,
			object_type, confidence, extraction_method, negated, valid_from, valid_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.DomainID, f.SubjectID, f.Predicate, nullString(f.ObjectEntityID), nullString(f.ObjectValue),
		f.ObjectType, f.Confidence, f.ExtractionMethod, f.Negated, formatTime(*f.ValidFrom),
		nullTime(f.ValidUntil), formatTime(now))
	if err != nil {
		if !isUniqueViolation(err) && isConstraintViolation(err) {
			return model.Fact{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return model.Fact{}, err
	}
	return f, nil
}

// ExpireFact marks a fact historical. Expiring an already expired fact is a
// no-op that returns it unchanged.
func (q *queries) ExpireFact(ctx context.Context, id string) (model.Fact, error) {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE facts SET valid_until = ? WHERE id = ? AND valid_until IS NULL`,
		formatTime(q.now()), id); err != nil {
		return model.Fact{}, fmt.Errorf("expire fact %s: %w", id, err)
	}
	return q.GetFact(ctx, id)
}

func (q *queries) ListBoardFacts(ctx context.Context, boardID string, includeExpired bool) ([]model.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM facts f
		JOIN domains d ON d.id = f.domain_id
		WHERE d.board_id = ?`
	if !includeExpired {
		query += ` AND f.valid_until IS NULL`
	}
	query += ` ORDER BY f.created_at, f.id`
	return q.queryFacts(ctx, query, boardID)
}

// ListEntityFacts returns the currently valid facts where the entity is the
// subject or the object.
func (q *queries) ListEntityFacts(ctx context.Context, entityID string) ([]model.Fact, error) {
	return q.queryFacts(ctx, `SELECT `+factColumns+` FROM facts f
		WHERE (f.subject_id = ? OR f.object_entity_id = ?) AND f.valid_until IS NULL
		ORDER BY f.created_at, f.id`, entityID, entityID)
}

func (q *queries) ListReviewFacts(ctx context.Context, boardID string, threshold float64) ([]model.Fact, error) {
	return q.queryFacts(ctx, `SELECT `+factColumns+` FROM facts f
		JOIN domains d ON d.id = f.domain_id
		WHERE d.board_id = ? AND f.valid_until IS NULL AND f.confidence < ?
		ORDER BY f.confidence, f.created_at`, boardID, threshold)
}

// ListEdges returns the currently valid entity-to-entity facts of a board.
func (q *queries) ListEdges(ctx context.Context, boardID string) ([]model.Edge, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT f.id, f.subject_id, f.object_entity_id FROM facts f
		JOIN domains d ON d.id = f.domain_id
		WHERE d.board_id = ? AND f.valid_until IS NULL AND f.object_entity_id IS NOT NULL
		  AND f.negated = 0
		ORDER BY f.created_at, f.id`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edges := []model.Edge{}
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.FactID, &e.SourceID, &e.TargetID); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
