package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Repository errors, matched with errors.Is by the services and handlers
var (
	// ErrNotFound is returned for a missing row and for rows owned by
	// another user or company
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEntry is returned for a second account with the same
	// address in a company, a template name reused in a company, or a
	// message id that is already stored
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrInvalidInput is returned for incomplete email records and for
	// status changes from the wrong state
	ErrInvalidInput = errors.New("invalid input")
)

// isDuplicateKeyError reports a unique constraint violation. Connections
// opened by database.Connect translate it to gorm.ErrDuplicatedKey; the
// driver messages cover untranslated errors.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "23505")
}
