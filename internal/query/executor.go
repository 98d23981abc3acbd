package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/paperatlas/internal/analyzer"
	"github.com/rpattn/paperatlas/internal/domain"
)

// DefaultStatementTimeout bounds single-statement execution. On expiry
// the statement is canceled server-side and the connection returns to
// the pool.
const DefaultStatementTimeout = 30 * time.Second

// Querier is the minimal statement-execution surface the executor
// needs. *pgxpool.Pool satisfies it; tests substitute a fake.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Executor issues built statements against the pool, applies the
// statement timeout, and maps rows to the result contract.
type Executor struct {
	db       Querier
	timeout  time.Duration
	analyzer *analyzer.Analyzer
}

// NewExecutor creates an executor. analyzer may be nil to disable plan
// capture entirely; timeout 0 means DefaultStatementTimeout.
func NewExecutor(db Querier, timeout time.Duration, an *analyzer.Analyzer) *Executor {
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}
	return &Executor{db: db, timeout: timeout, analyzer: an}
}

// Execute runs the built query and maps rows to canonical-name keyed
// maps. analyze requests plan capture; analyzer failures degrade to a
// warning and never fail the primary query.
func (e *Executor) Execute(ctx context.Context, built BuiltQuery, analyze bool) (domain.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result := domain.QueryResult{Warnings: []string{}}

	rows, err := e.db.Query(ctx, built.Main.SQL, built.Main.Args...)
	if err != nil {
		return domain.QueryResult{}, domain.ClassifyDatabaseError("execute_query", err)
	}

	mapped, truncated, err := mapRows(rows, built)
	if err != nil {
		return domain.QueryResult{}, domain.ClassifyDatabaseError("execute_query", err)
	}
	result.Rows = mapped
	if truncated {
		result.Warnings = append(result.Warnings, PrefilterTruncatedWarning(built.PrefilterCap))
	}

	if built.Count != nil {
		var total int
		if err := e.db.QueryRow(ctx, built.Count.SQL, built.Count.Args...).Scan(&total); err != nil {
			return domain.QueryResult{}, domain.ClassifyDatabaseError("execute_count", err)
		}
		result.TotalCount = &total
	}

	if analyze && e.analyzer != nil {
		plan, warnings, err := e.analyzer.Analyze(ctx, e.db, built.Main.SQL, built.Main.Args)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("plan capture failed: %v", err))
		} else {
			result.QueryPlan = plan
			result.Warnings = append(result.Warnings, warnings...)
		}
	}

	result.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	return result, nil
}

// mapRows converts pgx rows into canonical-name keyed maps, stripping
// the internal prefilter-count column and reporting whether the
// prefilter stage hit its cap. Hybrid statements emit one count-only
// placeholder row (null similarity) when the final page is empty; its
// count is read, the row itself is dropped.
func mapRows(rows pgx.Rows, built BuiltQuery) ([]map[string]any, bool, error) {
	defer rows.Close()

	mapped := make([]map[string]any, 0)
	truncated := false

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, false, fmt.Errorf("read row values: %w", err)
		}

		descriptions := rows.FieldDescriptions()
		row := make(map[string]any, len(descriptions))
		for i, desc := range descriptions {
			if i >= len(values) {
				break
			}
			name := string(desc.Name)
			if name == prefilterCountColumn {
				if count, ok := toInt64(values[i]); ok && count >= int64(built.PrefilterCap) {
					truncated = true
				}
				continue
			}
			row[name] = values[i]
		}
		if built.Semantic {
			if sim, ok := row[similarityColumn]; ok && sim == nil {
				continue
			}
		}
		mapped = append(mapped, row)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate rows: %w", err)
	}

	return mapped, truncated, nil
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
