package db

import (
	"strings"

	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pkgerrors.SQLState(err) == "23505" {
		return constraintName == "" || strings.Contains(err.Error(), constraintName)
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsRetryable reports whether err is a transient transaction abort.
func IsRetryable(err error) bool {
	switch pkgerrors.SQLStateClass(pkgerrors.SQLState(err)) {
	case "serialization_failure", "deadlock":
		return true
	}
	return false
}
