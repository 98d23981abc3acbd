package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/paperatlas/internal/domain"
)

// fakeRows implements pgx.Rows over canned values.
type fakeRows struct {
	fields []pgconn.FieldDescription
	values [][]any
	idx    int
	err    error
}

func newFakeRows(columns []string, values [][]any) *fakeRows {
	fields := make([]pgconn.FieldDescription, len(columns))
	for i, name := range columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return &fakeRows{fields: fields, values: values}
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) Next() bool {
	if r.idx < len(r.values) {
		r.idx++
		return true
	}
	return false
}
func (r *fakeRows) Scan(dest ...any) error { return nil }
func (r *fakeRows) Values() ([]any, error) { return r.values[r.idx-1], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeRow struct {
	value int
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if target, ok := dest[0].(*int); ok {
			*target = r.value
		}
	}
	return nil
}

// fakeQuerier serves canned rows and records every statement it sees.
type fakeQuerier struct {
	mu       sync.Mutex
	queries  []string
	columns  []string
	rows     [][]any
	queryErr error
	countVal int
	delay    time.Duration
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.mu.Lock()
	q.queries = append(q.queries, sql)
	q.mu.Unlock()

	if q.delay > 0 {
		select {
		case <-time.After(q.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if q.queryErr != nil {
		return nil, q.queryErr
	}
	return newFakeRows(q.columns, q.rows), nil
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.mu.Lock()
	q.queries = append(q.queries, sql)
	q.mu.Unlock()
	return fakeRow{value: q.countVal}
}

func (q *fakeQuerier) queryCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queries)
}

func TestExecute_MapsRowsByCanonicalName(t *testing.T) {
	db := &fakeQuerier{
		columns: []string{"paper_id", "title"},
		rows: [][]any{
			{"a", "Attention Is All You Need"},
			{"b", "ImageNet Classification"},
		},
	}
	executor := NewExecutor(db, 0, nil)

	result, err := executor.Execute(context.Background(), BuiltQuery{
		Main:         Statement{SQL: "SELECT 1"},
		PrefilterCap: DefaultPrefilterCap,
	}, false)
	if err != nil {
		t.Fatalf("expected execution to succeed, got %v", err)
	}

	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if result.Rows[0]["title"] != "Attention Is All You Need" {
		t.Fatalf("unexpected row mapping %v", result.Rows[0])
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
	if result.ExecutionTimeMs < 0 {
		t.Fatalf("expected non-negative execution time")
	}
}

func TestExecute_PrefilterTruncationAddsWarning(t *testing.T) {
	capRows := 100
	db := &fakeQuerier{
		columns: []string{"paper_id", "similarity", prefilterCountColumn},
		rows: [][]any{
			{"a", 0.97, int64(100)},
		},
	}
	executor := NewExecutor(db, 0, nil)

	result, err := executor.Execute(context.Background(), BuiltQuery{
		Main:         Statement{SQL: "SELECT 1"},
		Semantic:     true,
		PrefilterCap: capRows,
	}, false)
	if err != nil {
		t.Fatalf("expected execution to succeed, got %v", err)
	}

	if len(result.Warnings) != 1 || result.Warnings[0] != PrefilterTruncatedWarning(capRows) {
		t.Fatalf("expected truncation warning, got %v", result.Warnings)
	}
	if _, leaked := result.Rows[0][prefilterCountColumn]; leaked {
		t.Fatalf("internal count column leaked into result rows: %v", result.Rows[0])
	}
	if result.Rows[0]["similarity"] != 0.97 {
		t.Fatalf("expected similarity to survive mapping, got %v", result.Rows[0])
	}
}

func TestExecute_EmptyPageStillReportsTruncation(t *testing.T) {
	capRows := 100
	// count-only placeholder row: the page was empty but the prefilter
	// hit its cap, so the truncated rows may be why the page is empty
	db := &fakeQuerier{
		columns: []string{"paper_id", "similarity", prefilterCountColumn},
		rows: [][]any{
			{nil, nil, int64(100)},
		},
	}
	executor := NewExecutor(db, 0, nil)

	result, err := executor.Execute(context.Background(), BuiltQuery{
		Main:         Statement{SQL: "SELECT 1"},
		Semantic:     true,
		PrefilterCap: capRows,
	}, false)
	if err != nil {
		t.Fatalf("expected execution to succeed, got %v", err)
	}

	if len(result.Rows) != 0 {
		t.Fatalf("placeholder row must not surface as a result row: %v", result.Rows)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != PrefilterTruncatedWarning(capRows) {
		t.Fatalf("expected truncation warning on empty page, got %v", result.Warnings)
	}
}

func TestExecute_EmptyPageBelowCapIsClean(t *testing.T) {
	db := &fakeQuerier{
		columns: []string{"paper_id", "similarity", prefilterCountColumn},
		rows: [][]any{
			{nil, nil, int64(0)},
		},
	}
	executor := NewExecutor(db, 0, nil)

	result, err := executor.Execute(context.Background(), BuiltQuery{
		Main:         Statement{SQL: "SELECT 1"},
		Semantic:     true,
		PrefilterCap: 100,
	}, false)
	if err != nil {
		t.Fatalf("expected execution to succeed, got %v", err)
	}

	if len(result.Rows) != 0 {
		t.Fatalf("expected no rows, got %v", result.Rows)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings below cap, got %v", result.Warnings)
	}
}

func TestExecute_BelowCapHasNoWarning(t *testing.T) {
	db := &fakeQuerier{
		columns: []string{"paper_id", prefilterCountColumn},
		rows: [][]any{
			{"a", int64(42)},
		},
	}
	executor := NewExecutor(db, 0, nil)

	result, err := executor.Execute(context.Background(), BuiltQuery{
		Main:         Statement{SQL: "SELECT 1"},
		Semantic:     true,
		PrefilterCap: 100,
	}, false)
	if err != nil {
		t.Fatalf("expected execution to succeed, got %v", err)
	}

	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings below cap, got %v", result.Warnings)
	}
}

func TestExecute_CountStatementPopulatesTotal(t *testing.T) {
	db := &fakeQuerier{
		columns:  []string{"paper_id"},
		rows:     [][]any{{"a"}},
		countVal: 1234,
	}
	executor := NewExecutor(db, 0, nil)

	result, err := executor.Execute(context.Background(), BuiltQuery{
		Main:  Statement{SQL: "SELECT 1"},
		Count: &Statement{SQL: "SELECT COUNT(*)"},
	}, false)
	if err != nil {
		t.Fatalf("expected execution to succeed, got %v", err)
	}

	if result.TotalCount == nil || *result.TotalCount != 1234 {
		t.Fatalf("expected total count 1234, got %v", result.TotalCount)
	}
}

func TestExecute_TimeoutSurfacesAsQueryTimeout(t *testing.T) {
	db := &fakeQuerier{queryErr: context.DeadlineExceeded}
	executor := NewExecutor(db, time.Millisecond, nil)

	_, err := executor.Execute(context.Background(), BuiltQuery{
		Main: Statement{SQL: "SELECT pg_sleep(10)"},
	}, false)

	var dbErr *domain.DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected DatabaseError, got %v", err)
	}
	if dbErr.Kind != domain.QueryTimeout {
		t.Fatalf("expected QueryTimeout, got %s", dbErr.Kind)
	}
}

func TestExecute_SyntaxErrorClassified(t *testing.T) {
	db := &fakeQuerier{queryErr: &pgconn.PgError{Code: "42601", Message: "syntax error"}}
	executor := NewExecutor(db, 0, nil)

	_, err := executor.Execute(context.Background(), BuiltQuery{
		Main: Statement{SQL: "SELEC"},
	}, false)

	var dbErr *domain.DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected DatabaseError, got %v", err)
	}
	if dbErr.Kind != domain.QuerySyntaxError {
		t.Fatalf("expected QuerySyntaxError, got %s", dbErr.Kind)
	}
}
