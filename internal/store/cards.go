package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// UpsertCard stores the latest title and description of a card.
func (q *queries) UpsertCard(ctx context.Context, c model.Card) (model.Card, error) {
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.BoardID) == "" {
		return model.Card{}, fmt.Errorf("%w: card needs id and board id", ErrInvalid)
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = q.now()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO cards (id, board_id, title, description, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			board_id = excluded.board_id,
			title = excluded.title,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		c.ID, c.BoardID, c.Title, c.Description, formatTime(c.UpdatedAt))
	if err != nil {
		return model.Card{}, fmt.Errorf("upsert card %s: %w", c.ID, err)
	}
	return c, nil
}

func (q *queries) FindCard(ctx context.Context, id string) (model.Card, error) {
	var c model.Card
	var updated string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, board_id, title, description, updated_at FROM cards WHERE id = ?`, id).
		Scan(&c.ID, &c.BoardID, &c.Title, &c.Description, &updated)
	if err != nil {
		return model.Card{}, notFound(err, "card "+id)
	}
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

func (q *queries) ListBoardCards(ctx context.Context, boardID string) ([]model.Card, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, board_id, title, description, updated_at FROM cards WHERE board_id = ? ORDER BY id`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []model.Card{}
	for rows.Next() {
		var c model.Card
		var updated string
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Title, &c.Description, &updated); err != nil {
			return nil, err
		}
		c.UpdatedAt = parseTime(updated)
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
