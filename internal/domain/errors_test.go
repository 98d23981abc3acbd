package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyDatabaseError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want DatabaseKind
	}{
		{"statement cancellation", &pgconn.PgError{Code: "57014"}, QueryTimeout},
		{"syntax error", &pgconn.PgError{Code: "42601"}, QuerySyntaxError},
		{"undefined column", &pgconn.PgError{Code: "42703"}, QuerySyntaxError},
		{"unique violation", &pgconn.PgError{Code: "23505"}, IntegrityViolation},
		{"connection exception", &pgconn.PgError{Code: "08006"}, ConnectionFailed},
		{"client deadline", context.DeadlineExceeded, QueryTimeout},
		{"client cancellation", context.Canceled, QueryTimeout},
		{"unknown failure", errors.New("dial tcp: refused"), ConnectionFailed},
	}

	for _, tc := range cases {
		dbErr := ClassifyDatabaseError("execute_query", tc.err)
		if dbErr.Kind != tc.want {
			t.Fatalf("%s: expected kind %s, got %s", tc.name, tc.want, dbErr.Kind)
		}
		if dbErr.Operation != "execute_query" {
			t.Fatalf("%s: expected operation to be preserved, got %s", tc.name, dbErr.Operation)
		}
	}
}

func TestClassifyDatabaseErrorUnwrapsWrappedErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "57014"}
	wrapped := fmt.Errorf("run query: %w", pgErr)

	dbErr := ClassifyDatabaseError("execute_query", wrapped)
	if dbErr.Kind != QueryTimeout {
		t.Fatalf("expected QueryTimeout through wrapping, got %s", dbErr.Kind)
	}
	if !errors.Is(dbErr, pgErr) {
		t.Fatalf("expected the original pg error to remain reachable")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError(InvalidLimit, "limit must be between 1 and %d, got %d", 50000, 0)
	want := "INVALID_LIMIT: limit must be between 1 and 50000, got 0"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestEmbeddingServiceErrorUnwrap(t *testing.T) {
	inner := errors.New("503 from provider")
	err := &EmbeddingServiceError{Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("expected inner error to be reachable")
	}
}
