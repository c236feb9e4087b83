package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/Kerhoff/giftlist/internal/models"
)

// mapError converts database errors into model sentinels so callers never
// depend on driver types. Context cancellation passes through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", models.ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %v", models.ErrAlreadyExists, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %v", models.ErrNotFound, err)
		case "23514", // check_violation
			"22001", // string_data_right_truncation
			"22003": // numeric_value_out_of_range
			return fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return fmt.Errorf("%w: %v", models.ErrTransient, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}

	return err
}
