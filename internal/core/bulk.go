package core

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// BulkItem is the outcome of one card in a bulk run.
type BulkItem struct {
	CardID string                  `json:"card_id"`
	Counts *model.Counts           `json:"counts,omitempty"`
	Errors []string                `json:"errors,omitempty"`
	Error  string                  `json:"error,omitempty"`
	Result *model.ExtractionResult `json:"-"`
}

// RunMany extracts several cards with at most limit runs in flight. A failing
// card never cancels the others; results keep the order of cardIDs.
func (p *Pipeline) RunMany(ctx context.Context, cardIDs []string, limit int) []BulkItem {
	items := make([]BulkItem, len(cardIDs))
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range cardIDs {
		g.Go(func() error {
			item := BulkItem{CardID: id}
			if err := ctx.Err(); err != nil {
				item.Error = err.Error()
				items[i] = item
				return nil
			}
			res, err := p.Run(ctx, id)
			if err != nil {
				item.Error = err.Error()
			} else {
				counts := res.Counts()
				item.Counts = &counts
				item.Errors = res.Errors
				item.Result = res
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()
	return items
}
