package retrieval

import (
	"errors"
	"fmt"

	"github.com/efebarandurmaz/lexrag/internal/vector"
)

// ErrDimensionMismatch is returned, wrapped, when the query vector does not
// fit the index. It indicates misconfiguration and is never retried.
var ErrDimensionMismatch = vector.ErrDimensionMismatch

// DimensionError carries the expected and actual vector sizes.
type DimensionError = vector.DimensionError

// ErrInvalidArgument reports a bad top_k, radius or empty query.
var ErrInvalidArgument = errors.New("retrieval: invalid argument")

// CollaboratorError wraps a failure of the embedding function or the vector
// index. Op names the failed step: "embed", "query" or "fetch".
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("retrieval: %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// collaboratorErr classifies err from step op. Dimension mismatches pass
// through unwrapped by CollaboratorError so callers can tell configuration
// faults from outages.
func collaboratorErr(op string, err error) error {
	if errors.Is(err, ErrDimensionMismatch) {
		return fmt.Errorf("retrieval: %s: %w", op, err)
	}
	return &CollaboratorError{Op: op, Err: err}
}
