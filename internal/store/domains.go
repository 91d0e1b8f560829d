package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// EnsureDomain returns the board's domain called name, creating it if needed.
func (q *queries) EnsureDomain(ctx context.Context, boardID, name string) (model.Domain, error) {
	name = strings.TrimSpace(name)
	if boardID == "" || name == "" {
		return model.Domain{}, fmt.Errorf("%w: domain needs board id and name", ErrInvalid)
	}
	if d, err := q.findDomain(ctx, boardID, name); err == nil {
		return d, nil
	} else if !isNotFound(err) {
		return model.Domain{}, err
	}

	d := model.Domain{ID: q.newID(), BoardID: boardID, Name: name, CreatedAt: q.now()}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO domains (id, board_id, name, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.BoardID, d.Name, formatTime(d.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return q.findDomain(ctx, boardID, name)
		}
		return model.Domain{}, fmt.Errorf("create domain %q: %w", name, err)
	}
	return d, nil
}

// DefaultDomain returns the board's first domain, creating "General" when the
// board has none.
func (q *queries) DefaultDomain(ctx context.Context, boardID string) (model.Domain, error) {
	domains, err := q.ListDomains(ctx, boardID)
	if err != nil {
		return model.Domain{}, err
	}
	for _, d := range domains {
		if d.Name == model.DefaultDomainName {
			return d, nil
		}
	}
	if len(domains) > 0 {
		return domains[0], nil
	}
	return q.EnsureDomain(ctx, boardID, model.DefaultDomainName)
}

func (q *queries) GetDomain(ctx context.Context, id string) (model.Domain, error) {
	var d model.Domain
	var created string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, board_id, name, created_at FROM domains WHERE id = ?`, id).
		Scan(&d.ID, &d.BoardID, &d.Name, &created)
	if err != nil {
		return model.Domain{}, notFound(err, "domain "+id)
	}
	d.CreatedAt = parseTime(created)
	return d, nil
}

func (q *queries) findDomain(ctx context.Context, boardID, name string) (model.Domain, error) {
	var d model.Domain
	var created string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, board_id, name, created_at FROM domains WHERE board_id = ? AND name = ?`, boardID, name).
		Scan(&d.ID, &d.BoardID, &d.Name, &created)
	if err != nil {
		return model.Domain{}, notFound(err, "domain "+name)
	}
	d.CreatedAt = parseTime(created)
	return d, nil
}

func (q *queries) ListDomains(ctx context.Context, boardID string) ([]model.Domain, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, board_id, name, created_at FROM domains WHERE board_id = ? ORDER BY created_at, name`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	domains := []model.Domain{}
	for rows.Next() {
		var d model.Domain
		var created string
		if err := rows.Scan(&d.ID, &d.BoardID, &d.Name, &created); err != nil {
			return nil, err
		}
		d.CreatedAt = parseTime(created)
		domains = append(domains, d)
	}
	return domains, rows.Err()
}
