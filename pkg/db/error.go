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

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsPermissionDeniedErr reports whether the error came back from the
// database as a privilege or row-level security rejection.
func IsPermissionDeniedErr(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// PostgreSQL (error code 42501)
	if strings.Contains(msg, "permission denied") {
		return true
	}
	if strings.Contains(msg, "42501") {
		return true
	}

	// PostgreSQL row-level security violation
	if strings.Contains(msg, "violates row-level security policy") {
		return true
	}

	return false
}
