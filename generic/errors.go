/*
errors.go - Storage-level error sentinels

PURPOSE:
  Every store implementation (sqlite, postgres) translates driver errors into
  these sentinels so the domain can react without knowing the driver.

USAGE:
  if errors.Is(err, generic.ErrNotFound) { ... }
  if generic.IsRetryable(err) { retry the unit of work }

SEE ALSO:
  - store/sqlite/sqlite.go, store/postgres/errors.go: Translate driver errors
  - timeoff/errors.go: Domain error taxonomy
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate")

	// ErrConcurrentModification is returned when a conditional update matched
	// no row because another writer changed it first.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// NotFound wraps ErrNotFound with the kind and key of the missing row.
func NotFound(kind string, key any) error {
	return fmt.Errorf("%s %v: %w", kind, key, ErrNotFound)
}

// Duplicate wraps ErrDuplicate with the kind and key of the conflicting row.
func Duplicate(kind string, key any) error {
	return fmt.Errorf("%s %v: %w", kind, key, ErrDuplicate)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
