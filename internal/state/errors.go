package state

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/ncruces/go-sqlite3"

	"github.com/user/foreman/internal/types"
)

// wrapDBError adds operation context, mapping sql.ErrNoRows to
// types.ErrNotFound and connection faults to types.ErrStoreUnavailable.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, types.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, sqlite3.BUSY),
		errors.Is(err, sqlite3.LOCKED),
		errors.Is(err, sqlite3.CANTOPEN),
		errors.Is(err, sqlite3.IOERR):
		return true
	}
	// database/sql reports a closed pool with an unexported error value.
	return strings.Contains(err.Error(), "database is closed")
}
