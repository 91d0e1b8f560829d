package notify

import (
	"context"
	"errors"

	"github.com/agenthands/cardgraph/internal/core/model"
)

type Notifier interface {
	Progress(ctx context.Context, p model.Progress) error
	Complete(ctx context.Context, cardID string, result *model.ExtractionResult) error
}

// Fanout forwards every event to all notifiers; one failing notifier does not
// stop the others.
type Fanout []Notifier

func (f Fanout) Progress(ctx context.Context, p model.Progress) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.Progress(ctx, p))
	}
	return errors.Join(errs...)
}

func (f Fanout) Complete(ctx context.Context, cardID string, result *model.ExtractionResult) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.Complete(ctx, cardID, result))
	}
	return errors.Join(errs...)
}
