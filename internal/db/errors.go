package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"charterops/internal/domain"
)

// MySQL server error numbers the store reacts to.
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errNoReferencedRow = 1452
)

// MapError translates driver errors into the domain taxonomy.
// Lock waits and deadlocks are lost races, so they surface as conflicts.
func MapError(resource string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError{Resource: resource, Err: err}
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDuplicateEntry:
			return domain.ConflictError{Resource: resource, Msg: "duplicate entry", Err: err}
		case errDeadlock:
			return domain.ConflictError{Resource: resource, Msg: "deadlock, retry", Err: err}
		case errLockWaitTimeout:
			return domain.ConflictError{Resource: resource, Msg: "lock wait timeout, retry", Err: err}
		case errNoReferencedRow:
			return domain.NotFoundError{Resource: resource, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", resource, err)
}
