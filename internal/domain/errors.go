package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationKind identifies which request parameter failed validation.
type ValidationKind string

const (
	InvalidField       ValidationKind = "INVALID_FIELD"
	InvalidBoundingBox ValidationKind = "INVALID_BOUNDING_BOX"
	InvalidSqlFilter   ValidationKind = "INVALID_SQL_FILTER"
	InvalidLimit       ValidationKind = "INVALID_LIMIT"
	InvalidOffset      ValidationKind = "INVALID_OFFSET"
	InvalidSortField   ValidationKind = "INVALID_SORT_FIELD"
	InvalidThreshold   ValidationKind = "INVALID_THRESHOLD"
	InvalidTargetCount ValidationKind = "INVALID_TARGET_COUNT"
)

// ValidationError is returned before any database access when a request
// parameter cannot be normalized. It is always recoverable by the caller
// correcting its input.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// DatabaseKind classifies failures raised during statement execution.
type DatabaseKind string

const (
	ConnectionFailed   DatabaseKind = "CONNECTION_FAILED"
	QueryTimeout       DatabaseKind = "QUERY_TIMEOUT"
	QuerySyntaxError   DatabaseKind = "QUERY_SYNTAX_ERROR"
	IntegrityViolation DatabaseKind = "INTEGRITY_VIOLATION"
)

// DatabaseError wraps an execution failure with the operation name and
// enough context to be actionable. QueryTimeout is expected under
// adversarial filter combinations and must stay distinguishable from the
// other kinds so callers can react (e.g. suggest a narrower bounding box).
type DatabaseError struct {
	Kind      DatabaseKind
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Operation, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// ClassifyDatabaseError maps a pgx-level failure to the typed taxonomy.
// Statement cancellation (server SQLSTATE 57014) and client context
// deadlines both surface as QueryTimeout.
func ClassifyDatabaseError(operation string, err error) *DatabaseError {
	kind := ConnectionFailed

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = QueryTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014":
			kind = QueryTimeout
		case strings.HasPrefix(pgErr.Code, "42"):
			kind = QuerySyntaxError
		case strings.HasPrefix(pgErr.Code, "23"):
			kind = IntegrityViolation
		case strings.HasPrefix(pgErr.Code, "08"):
			kind = ConnectionFailed
		}
	}

	return &DatabaseError{Kind: kind, Operation: operation, Err: err}
}

// EmbeddingServiceError is raised by the embedding provider collaborator.
// Treated as degraded-but-recoverable: the caller may fall back to a
// non-semantic query.
type EmbeddingServiceError struct {
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %v", e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}
