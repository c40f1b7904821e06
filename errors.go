package docfind

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCombination is returned when a combinator is given no subqueries.
	ErrEmptyCombination = errors.New("combination requires at least one subquery")

	// ErrInvalidWeightFactor is returned when a weight factor is not strictly positive.
	ErrInvalidWeightFactor = errors.New("weight factor must be positive")

	// ErrTargetConflict is returned when combined queries are bound to
	// different targets.
	ErrTargetConflict = errors.New("queries have conflicting targets")

	// ErrTargetNotSet is returned when a query without a resolved target is
	// turned into a Searchable.
	ErrTargetNotSet = errors.New("search target not set")

	// ErrIndexOutOfRange is returned when a result index falls outside the
	// slice range or past the last match.
	ErrIndexOutOfRange = errors.New("result index out of range")

	// ErrWaitTimeout is returned when a bounded checkpoint wait gives up.
	// It says nothing about whether the checkpoint later succeeds.
	ErrWaitTimeout = errors.New("checkpoint wait timed out")

	// ErrCheckpointExpired is returned when the server discarded a
	// checkpoint before its state was observed.
	ErrCheckpointExpired = errors.New("checkpoint expired")
)

// ServiceError indicates a transport or availability failure talking to the
// search service. It is never retried by the client; retry policy belongs to
// the caller or the Protocol implementation.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ServiceError struct {
	Op    string // the operation that failed, e.g. "search", "checkpoint"
	cause error
}

// NewServiceError wraps a transport failure for the given operation.
func NewServiceError(op string, cause error) *ServiceError {
	return &ServiceError{Op: op, cause: cause}
}

func (e *ServiceError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("service error during %s", e.Op)
	}
	return fmt.Sprintf("service error during %s: %v", e.Op, e.cause)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// QueryError indicates a semantically invalid query, discovered only when
// the service evaluated it (e.g. a range query on a non-numeric field).
// Construction never validates field/type compatibility; that check is
// deliberately deferred to evaluation so building queries stays network-free.
type QueryError struct {
	Msg string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %s", e.Msg)
}
