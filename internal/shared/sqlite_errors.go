// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

func errContains(err error, substr string) bool {
	return err != nil && strings.Contains(err.Error(), substr)
}

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	return errContains(err, "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	return errContains(err, "database is locked")
}

// IsSQLiteConflictError checks if the error is either a SQLITE_BUSY
// or "database is locked" error. Both warrant a retry.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// IsSQLiteConstraintError checks if the error is a UNIQUE, PRIMARY KEY or
// FOREIGN KEY constraint violation. These are never retried.
func IsSQLiteConstraintError(err error) bool {
	return errContains(err, "constraint failed") || errContains(err, "SQLITE_CONSTRAINT")
}
