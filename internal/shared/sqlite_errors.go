// Package shared classifies driver errors for the store layer.
package shared

import (
	"context"
	"errors"
	"strings"
)

// modernc.org/sqlite surfaces result codes only in the message text.
const (
	sqliteBusy       = "SQLITE_BUSY"
	sqliteLocked     = "database is locked"
	sqliteUnique     = "UNIQUE constraint failed"
	sqliteForeignKey = "FOREIGN KEY constraint failed"
)

func errorMentions(err error, fragment string) bool {
	return err != nil && strings.Contains(err.Error(), fragment)
}

// IsSQLiteBusyError matches SQLITE_BUSY.
func IsSQLiteBusyError(err error) bool { return errorMentions(err, sqliteBusy) }

// IsSQLiteLockedError matches a locked database.
func IsSQLiteLockedError(err error) bool { return errorMentions(err, sqliteLocked) }

// IsSQLiteConflictError reports a concurrency error that warrants a retry.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// IsSQLiteUniqueError reports a UNIQUE constraint violation.
func IsSQLiteUniqueError(err error) bool { return errorMentions(err, sqliteUnique) }

// IsSQLiteForeignKeyError reports a row referencing a user that does not exist.
func IsSQLiteForeignKeyError(err error) bool { return errorMentions(err, sqliteForeignKey) }

// IsContextError reports a cancelled or timed out operation.
func IsContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
