package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/paperatlas/internal/domain"
)

// Default pathology thresholds, both config-tunable.
const (
	DefaultSeqScanRowThreshold = 100000
	DefaultNodeSelfTimeMs      = 1000.0
	vectorDistanceOperator     = "<=>"
)

// Querier is the statement surface the analyzer needs for EXPLAIN.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AnalysisRecord is one append-only performance observation, consumed
// offline and never read back by the serving path.
type AnalysisRecord struct {
	QueryHash       string  `json:"queryHash"`
	Operation       string  `json:"operation"`
	ExecutionTimeMs float64 `json:"executionTimeMs"`
	ResultCount     int64   `json:"resultCount"`
	IndexUsageCount int     `json:"indexUsageCount"`
	IssueCount      int     `json:"issueCount"`
}

// Sink receives analysis records.
type Sink interface {
	Record(record AnalysisRecord)
}

// LogSink emits records as structured log lines.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Record(record AnalysisRecord) {
	s.Logger.Info("query analysis",
		"query_hash", record.QueryHash,
		"operation", record.Operation,
		"execution_time_ms", record.ExecutionTimeMs,
		"result_count", record.ResultCount,
		"index_usage_count", record.IndexUsageCount,
		"issue_count", record.IssueCount,
	)
}

// Analyzer captures execution plans and flags pathological shapes as
// non-fatal warnings. A failure to produce a plan never fails the
// primary query; callers degrade to a logged warning.
type Analyzer struct {
	seqScanRowThreshold int64
	nodeSelfTimeMs      float64
	sink                Sink
	logger              *slog.Logger
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithSeqScanRowThreshold overrides the full-scan row threshold.
func WithSeqScanRowThreshold(rows int64) Option {
	return func(a *Analyzer) {
		if rows > 0 {
			a.seqScanRowThreshold = rows
		}
	}
}

// WithNodeSelfTimeThreshold overrides the per-node self-time threshold.
func WithNodeSelfTimeThreshold(ms float64) Option {
	return func(a *Analyzer) {
		if ms > 0 {
			a.nodeSelfTimeMs = ms
		}
	}
}

// WithSink overrides where analysis records go.
func WithSink(sink Sink) Option {
	return func(a *Analyzer) {
		a.sink = sink
	}
}

// New builds an analyzer with default thresholds and a slog sink.
func New(opts ...Option) *Analyzer {
	logger := slog.Default().With("component", "query-analyzer")
	a := &Analyzer{
		seqScanRowThreshold: DefaultSeqScanRowThreshold,
		nodeSelfTimeMs:      DefaultNodeSelfTimeMs,
		sink:                LogSink{Logger: logger},
		logger:              logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze re-executes the statement under EXPLAIN (ANALYZE, FORMAT JSON),
// parses the plan tree, flags pathologies, and emits an AnalysisRecord.
func (a *Analyzer) Analyze(ctx context.Context, db Querier, sql string, args []any) (*domain.PlanNode, []string, error) {
	explainSQL := "EXPLAIN (ANALYZE, FORMAT JSON) " + sql

	rows, err := db.Query(ctx, explainSQL, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("explain query: %w", err)
	}
	defer rows.Close()

	var planJSON []byte
	if rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("read explain row: %w", err)
		}
		if len(values) > 0 {
			switch v := values[0].(type) {
			case string:
				planJSON = []byte(v)
			case []byte:
				planJSON = v
			default:
				raw, err := json.Marshal(v)
				if err != nil {
					return nil, nil, fmt.Errorf("encode plan value: %w", err)
				}
				planJSON = raw
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate explain rows: %w", err)
	}
	if len(planJSON) == 0 {
		return nil, nil, fmt.Errorf("engine returned no plan")
	}

	plan, executionTimeMs, err := ParsePlan(planJSON)
	if err != nil {
		return nil, nil, err
	}

	warnings := a.Inspect(plan, strings.Contains(sql, vectorDistanceOperator))

	record := AnalysisRecord{
		QueryHash:       HashStatement(sql),
		Operation:       "execute_query",
		ExecutionTimeMs: executionTimeMs,
		ResultCount:     plan.ActualRows,
		IndexUsageCount: countIndexNodes(plan),
		IssueCount:      len(warnings),
	}
	a.sink.Record(record)

	return plan, warnings, nil
}

// Inspect walks a plan tree and returns pathology warnings: full-table
// scans past the row threshold, nodes whose self time exceeds the
// per-node threshold, and a vector ordering served without the
// approximate-neighbor index.
func (a *Analyzer) Inspect(plan *domain.PlanNode, vectorOrdered bool) []string {
	warnings := []string{}
	indexedVector := false

	walkPlan(plan, func(node *domain.PlanNode) {
		if node.NodeType == "Seq Scan" && node.ActualRows >= a.seqScanRowThreshold {
			warnings = append(warnings, fmt.Sprintf(
				"sequential scan over %s read %d rows", node.RelationName, node.ActualRows))
		}
		if node.SelfTimeMs >= a.nodeSelfTimeMs {
			warnings = append(warnings, fmt.Sprintf(
				"plan node %s spent %.1fms", node.NodeType, node.SelfTimeMs))
		}
		if node.IndexName != "" && strings.Contains(node.IndexName, "embedding") {
			indexedVector = true
		}
	})

	if vectorOrdered && !indexedVector {
		warnings = append(warnings, "vector ordering executed without the approximate-neighbor index")
	}

	return warnings
}

// HashStatement returns a stable short hash of a statement's text.
func HashStatement(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:8])
}

func countIndexNodes(plan *domain.PlanNode) int {
	count := 0
	walkPlan(plan, func(node *domain.PlanNode) {
		if node.IndexName != "" {
			count++
		}
	})
	return count
}

func walkPlan(node *domain.PlanNode, visit func(*domain.PlanNode)) {
	if node == nil {
		return
	}
	visit(node)
	for _, child := range node.Children {
		walkPlan(child, visit)
	}
}
