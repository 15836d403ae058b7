package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

var lockTimeoutMarkers = []string{
	"could not obtain lock",      // PostgreSQL 55P03, NOWAIT
	"due to lock timeout",        // PostgreSQL 55P03, lock_timeout
	"Lock wait timeout exceeded", // MySQL 1205
	"database is locked",         // SQLite
}

// IsLockTimeoutErr reports whether err came from a row lock that could not be
// acquired before the connection's lock timeout.
func IsLockTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range lockTimeoutMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
