package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/rpattn/paperatlas/internal/domain"
)

// Definition is the untrusted form of one sub-query in a fan-out.
type Definition struct {
	ID           string             `json:"id,omitempty"`
	Name         string             `json:"name"`
	Source       string             `json:"source,omitempty"`
	ColorByField string             `json:"colorByField"`
	SQLFilter    string             `json:"sqlFilter,omitempty"`
	BBox         string             `json:"bbox,omitempty"`
	SearchText   string             `json:"searchText,omitempty"`
	ColorScheme  domain.ColorScheme `json:"colorScheme"`
	Symbol       string             `json:"symbol,omitempty"`
}

// Orchestrator fans a visualization request out over independently
// defined sub-queries. Sub-queries run concurrently on a bounded worker
// pool (at most the connection pool size) and are fully isolated: one
// definition's failure is recorded on its own result and never stops
// its siblings.
type Orchestrator struct {
	engine *Engine
	pool   *ants.Pool
}

// NewOrchestrator creates an orchestrator with a worker pool of the
// given size.
func NewOrchestrator(engine *Engine, concurrency int) (*Orchestrator, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("create fan-out pool: %w", err)
	}
	return &Orchestrator{engine: engine, pool: pool}, nil
}

// Release tears down the worker pool.
func (o *Orchestrator) Release() {
	o.pool.Release()
}

// ExecuteMultiQuery runs every definition through the full pipeline.
// TotalExecutionTimeMs is the wall-clock span of the fan-out, not the
// sum of sub-query times.
func (o *Orchestrator) ExecuteMultiQuery(
	ctx context.Context,
	definitions []Definition,
	sharedFields []string,
	limit int,
	offset int,
) (domain.MultiQueryResult, error) {
	start := time.Now()

	results := make([]domain.QueryDefinitionResult, len(definitions))
	var wg sync.WaitGroup

	for i, def := range definitions {
		i, def := i, def
		wg.Add(1)
		submitErr := o.pool.Submit(func() {
			defer wg.Done()
			results[i] = o.runDefinition(ctx, def, sharedFields, limit, offset)
		})
		if submitErr != nil {
			wg.Done()
			results[i] = domain.QueryDefinitionResult{
				QueryID:      parseDefinitionID(def.ID),
				Name:         def.Name,
				Status:       domain.QueryFailed,
				ErrorMessage: fmt.Sprintf("submit sub-query: %v", submitErr),
			}
		}
	}

	wg.Wait()

	out := domain.MultiQueryResult{
		Results:              results,
		TotalExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Warnings:             []string{},
	}
	for _, result := range results {
		if result.Result != nil {
			out.Warnings = append(out.Warnings, result.Result.Warnings...)
		}
	}

	return out, nil
}

// runDefinition executes one sub-query and maps any failure into the
// definition's own result.
func (o *Orchestrator) runDefinition(
	ctx context.Context,
	def Definition,
	sharedFields []string,
	limit int,
	offset int,
) domain.QueryDefinitionResult {
	result := domain.QueryDefinitionResult{
		QueryID: parseDefinitionID(def.ID),
		Name:    def.Name,
	}

	req, err := o.buildRequest(def, sharedFields, limit, offset)
	if err != nil {
		result.Status = domain.QueryFailed
		result.ErrorMessage = err.Error()
		return result
	}

	queryResult, err := o.engine.ExecuteQuery(ctx, req)
	if err != nil {
		result.Status = domain.QueryFailed
		result.ErrorMessage = err.Error()
		return result
	}

	applyColors(queryResult.Rows, def)

	result.Status = domain.QueryCompleted
	result.Result = &queryResult
	return result
}

// buildRequest assembles the sub-query request: shared fields plus the
// color-by field, the definition's own filters, and an attribute
// predicate pinning the source when one is declared.
func (o *Orchestrator) buildRequest(def Definition, sharedFields []string, limit, offset int) (Request, error) {
	if def.ColorByField == "" {
		return Request{}, domain.NewValidationError(domain.InvalidField, "definition %q has no color-by field", def.Name)
	}
	if !o.engine.registry.Has(def.ColorByField) {
		return Request{}, domain.NewValidationError(domain.InvalidField,
			"color-by field %q not defined for source %q", def.ColorByField, def.Source)
	}

	fields := append([]string{}, sharedFields...)
	fields = append(fields, def.ColorByField)

	sqlFilter := def.SQLFilter
	if def.Source != "" {
		sourceClause := "source = " + quoteLiteral(def.Source)
		if sqlFilter == "" {
			sqlFilter = sourceClause
		} else {
			sqlFilter = "(" + sqlFilter + ") AND " + sourceClause
		}
	}

	return Request{
		Fields:     fields,
		SearchText: def.SearchText,
		BBox:       def.BBox,
		SQLFilter:  sqlFilter,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// applyColors resolves each row's display color through the
// definition's color scheme.
func applyColors(rows []map[string]any, def Definition) {
	for _, row := range rows {
		value := ""
		if raw, ok := row[def.ColorByField]; ok && raw != nil {
			value = fmt.Sprint(raw)
		}
		row["color"] = def.ColorScheme.ColorFor(value)
		if def.Symbol != "" {
			row["symbol"] = def.Symbol
		}
	}
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func parseDefinitionID(id string) uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
