package loader

import (
	"context"
	"errors"
	"log/slog"
)

// undoStep reverses one pin made during a load.
type undoStep struct {
	desc string
	fn   func() error
}

// undoStack accumulates undo steps that are executed in reverse
// order when a multi-step attach fails partway through.
type undoStack []undoStep

func (u *undoStack) push(desc string, fn func() error) {
	*u = append(*u, undoStep{desc: desc, fn: fn})
}

// rollback runs every step, newest first, and joins the failures.
func (u undoStack) rollback(ctx context.Context, logger *slog.Logger) error {
	var errs []error
	for i := len(u) - 1; i >= 0; i-- {
		if err := u[i].fn(); err != nil {
			logger.ErrorContext(ctx, "rollback step failed", "step", u[i].desc, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
