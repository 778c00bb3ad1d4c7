package services

import (
	"fmt"

	"github.com/labmate/labmate/internal/db"
	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/types"
)

// startGuard rejects a start request unless status is pending. A running
// record is busy; a finished one needs a new attempt.
func startGuard(op string, status models.Status) error {
	switch {
	case status == models.StatusPending:
		return nil
	case status == models.StatusRunning:
		return types.NewError(types.KindConflict, op, types.ErrTaskBusy)
	default:
		return types.NewError(types.KindConflict, op,
			fmt.Errorf("%w: %s -> %s, start a new attempt instead", types.ErrInvalidTransition, status, models.StatusRunning))
	}
}

// busyOnDuplicate maps a lost race on the attempt index to a busy conflict
func busyOnDuplicate(op string, err error) error {
	if db.IsDuplicateKeyError(err) {
		return types.NewError(types.KindConflict, op, fmt.Errorf("%w: %w", types.ErrTaskBusy, err))
	}
	return err
}
