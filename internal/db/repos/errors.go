package repos

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/types"
)

// errStaleStatus is returned when a conditional status update matched no row
var errStaleStatus = errors.New("stored status changed before the update")

// notFound converts gorm.ErrRecordNotFound into a typed not-found error
func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewError(types.KindNotFound, fmt.Sprintf("get %s %v", what, id), types.ErrNotFound)
	}
	return err
}

func staleStatus(op string) error {
	return types.NewError(types.KindConflict, op, fmt.Errorf("%w: %w", types.ErrTaskBusy, errStaleStatus))
}
