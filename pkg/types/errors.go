package types

import (
	"errors"
	"fmt"
)

// Domain errors for type validation
var (
	// Pattern errors
	ErrUnknownPatternType = errors.New("unknown pattern type")
	ErrMissingLines       = errors.New("pattern has no line information")
	ErrMissingPackagePath = errors.New("pattern location requires a package path")

	// Constraint errors
	ErrUnknownConstraintType = errors.New("unknown constraint type")
	ErrInvalidGroundTruth    = errors.New("invalid ground truth reference")

	// Result errors
	ErrInvalidRank      = errors.New("rank must be >= 1")
	ErrInvalidTextBlock = errors.New("invalid text block id")
)

// InvariantError reports a broken detector or indexer invariant. Callers abort
// the current build when they receive one.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: invariant violated: %s", e.Op, e.Msg)
}

// NewInvariantError formats an InvariantError for the given operation.
func NewInvariantError(op, format string, args ...interface{}) error {
	return &InvariantError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsInvariant reports whether err wraps an InvariantError.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
