package storage

import (
	"errors"
	"strings"
)

// Sentinel errors returned by the ticket store. Callers classify them with
// errors.Is; the concrete message carries the offending id or field path.
var (
	ErrNotFound               = errors.New("ticket not found")
	ErrDuplicateID            = errors.New("duplicate ticket id")
	ErrInvalidField           = errors.New("invalid field path")
	ErrInvalidValue           = errors.New("invalid value")
	ErrRetryDecrease          = errors.New("retry_count cannot decrease")
	ErrPredecessorsIncomplete = errors.New("predecessors not completed")
	ErrIncompatibleVersion    = errors.New("incompatible store version")
	ErrNotInitialized         = errors.New("store not initialized")
)

// errNoChange aborts a transaction without writing and is reported as success.
var errNoChange = errors.New("no change")

// CycleError reports a dependency that would close a cycle. Path is the
// offending chain and closes on its first element, e.g. [A B A].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// IsStructural reports whether err is a validation failure that was rejected
// before any mutation (as opposed to an I/O or backend failure).
func IsStructural(err error) bool {
	var cycle *CycleError
	return errors.As(err, &cycle) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrRetryDecrease) ||
		errors.Is(err, ErrPredecessorsIncomplete)
}
