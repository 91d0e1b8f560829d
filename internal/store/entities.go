package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/agenthands/cardgraph/internal/core/model"
)

const entityColumns = `e.id, e.domain_id, e.name, e.aliases, e.entity_type, e.description, e.confidence,
	e.external_id, e.external_source, e.created_at, e.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (model.Entity, error) {
	var e model.Entity
	var aliases, created, updated string
	var extID, extSource sql.NullString
	if err := row.Scan(&e.ID, &e.DomainID, &e.Name, &aliases, &e.EntityType, &e.Description,
		&e.Confidence, &extID, &extSource, &created, &updated); err != nil {
		return model.Entity{}, err
	}
	if err := json.Unmarshal([]byte(aliases), &e.Aliases); err != nil {
		return model.Entity{}, fmt.Errorf("decode aliases of %s: %w", e.ID, err)
	}
	if e.Aliases == nil {
		e.Aliases = []string{}
	}
	e.ExternalID = stringPtr(extID)
	e.ExternalSource = stringPtr(extSource)
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return e, nil
}

func (q *queries) queryEntities(ctx context.Context, query string, args ...any) ([]model.Entity, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := []model.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (q *queries) GetEntity(ctx context.Context, id string) (model.Entity, error) {
	e, err := scanEntity(q.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities e WHERE e.id = ?`, id))
	if err != nil {
		return model.Entity{}, notFound(err, "entity "+id)
	}
	return e, nil
}

// FindEntityByName prefers an exact name match and falls back to a
// case-insensitive one.
func (q *queries) FindEntityByName(ctx context.Context, domainID, name string) (model.Entity, error) {
	name = strings.TrimSpace(name)
	e, err := scanEntity(q.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities e WHERE e.domain_id = ? AND e.name = ?`, domainID, name))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Entity{}, err
	}
	e, err = scanEntity(q.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities e
		WHERE e.domain_id = ? AND e.name = ? COLLATE NOCASE
		ORDER BY e.created_at, e.id LIMIT 1`, domainID, name))
	if err != nil {
		return model.Entity{}, notFound(err, "entity "+name)
	}
	return e, nil
}

func (q *queries) FindEntityByExternal(ctx context.Context, source, externalID string) (model.Entity, error) {
	e, err := scanEntity(q.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities e WHERE e.external_source = ? AND e.external_id = ?`,
		source, externalID))
	if err != nil {
		return model.Entity{}, notFound(err, "entity "+source+":"+externalID)
	}
	return e, nil
}

// FindOrCreateEntity returns the entity with e's name in e's domain, creating
// it from e when none exists. Entities carrying an external reference are
// keyed by that reference instead; if their name is already taken by another
// entity ErrConflict is returned.
func (q *queries) FindOrCreateEntity(ctx context.Context, e model.Entity) (model.Entity, bool, error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" || e.DomainID == "" {
		return model.Entity{}, false, fmt.Errorf("%w: entity needs domain and name", ErrInvalid)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return model.Entity{}, false, fmt.Errorf("%w: entity confidence %v out of range", ErrInvalid, e.Confidence)
	}
	if (e.ExternalID == nil) != (e.ExternalSource == nil) {
		return model.Entity{}, false, fmt.Errorf("%w: external id and source must be set together", ErrInvalid)
	}
	if e.EntityType == "" {
		e.EntityType = model.EntityConcept
	}
	external := e.ExternalID != nil

	lookup := func() (model.Entity, error) {
		if external {
			return q.FindEntityByExternal(ctx, *e.ExternalSource, *e.ExternalID)
		}
		return q.FindEntityByName(ctx, e.DomainID, e.Name)
	}

	if found, err := lookup(); err == nil {
		return found, false, nil
	} else if !isNotFound(err) {
		return model.Entity{}, false, err
	}

	created, err := q.insertEntity(ctx, e)
	if err == nil {
		return created, true, nil
	}
	if !isUniqueViolation(err) {
		return model.Entity{}, false, err
	}

	found, lerr := lookup()
	if lerr == nil {
		return found, false, nil
	}
	if external && isNotFound(lerr) {
		return model.Entity{}, false, fmt.Errorf("%w: entity name %q already taken in domain", ErrConflict, e.Name)
	}
	return model.Entity{}, false, lerr
}

func (q *queries) insertEntity(ctx context.Context, e model.Entity) (model.Entity, error) {
	now := q.now()
	e.ID = q.newID()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Aliases == nil {
		e.Aliases = []string{}
	}
	aliases, err := json.Marshal(e.Aliases)
	if err != nil {
		return model.Entity{}, err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO entities (id, domain_id, name, aliases, entity_type, description, confidence,
			external_id, external_source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DomainID, e.Name, string(aliases), e.EntityType, e.Description, e.Confidence,
		nullString(e.ExternalID), nullString(e.ExternalSource), formatTime(now), formatTime(now))
	if err != nil {
		if !isUniqueViolation(err) && isConstraintViolation(err) {
			return model.Entity{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return model.Entity{}, err
	}
	return e, nil
}

// ListBoardEntities returns every entity in any domain of the board, oldest first.
func (q *queries) ListBoardEntities(ctx context.Context, boardID string) ([]model.Entity, error) {
	return q.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities e
		JOIN domains d ON d.id = e.domain_id
		WHERE d.board_id = ?
		ORDER BY e.created_at, e.name`, boardID)
}

// ListReviewEntities returns AI-inferred entities of the board whose
// confidence is below threshold, least confident first.
func (q *queries) ListReviewEntities(ctx context.Context, boardID string, threshold float64) ([]model.Entity, error) {
	return q.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities e
		JOIN domains d ON d.id = e.domain_id
		WHERE d.board_id = ? AND e.confidence < ?
		ORDER BY e.confidence, e.name`, boardID, threshold)
}

// AddAlias appends alias unless it equals the name or an existing alias.
func (q *queries) AddAlias(ctx context.Context, entityID, alias string) (model.Entity, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return model.Entity{}, fmt.Errorf("%w: empty alias", ErrInvalid)
	}
	e, err := q.GetEntity(ctx, entityID)
	if err != nil {
		return model.Entity{}, err
	}
	if strings.EqualFold(e.Name, alias) || e.HasAlias(alias) {
		return e, nil
	}
	e.Aliases = append(e.Aliases, alias)
	return q.saveAliases(ctx, e)
}

func (q *queries) saveAliases(ctx context.Context, e model.Entity) (model.Entity, error) {
	aliases, err := json.Marshal(e.Aliases)
	if err != nil {
		return model.Entity{}, err
	}
	e.UpdatedAt = q.now()
	if _, err := q.db.ExecContext(ctx,
		`UPDATE entities SET aliases = ?, updated_at = ? WHERE id = ?`,
		string(aliases), formatTime(e.UpdatedAt), e.ID); err != nil {
		return model.Entity{}, fmt.Errorf("update aliases of %s: %w", e.ID, err)
	}
	return e, nil
}

func (q *queries) UpdateEntityDescription(ctx context.Context, entityID, description string) (model.Entity, error) {
	now := q.now()
	res, err := q.db.ExecContext(ctx,
		`UPDATE entities SET description = ?, updated_at = ? WHERE id = ?`,
		description, formatTime(now), entityID)
	if err != nil {
		return model.Entity{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Entity{}, fmt.Errorf("entity %s: %w", entityID, ErrNotFound)
	}
	return q.GetEntity(ctx, entityID)
}
