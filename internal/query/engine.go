package query

import (
	"context"
	"errors"
	"strings"

	"github.com/rpattn/paperatlas/internal/domain"
	"github.com/rpattn/paperatlas/internal/registry"
)

var errNoEmbedder = errors.New("no embedding provider configured")

// Embedder derives a query vector from free text. Called at most once
// per request, before query construction.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Request carries the untrusted parameters of one search request.
// Everything here is validated and normalized before SQL construction.
type Request struct {
	Fields              []string `json:"fields"`
	SearchText          string   `json:"searchText,omitempty"`
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty"`
	BBox                string   `json:"bbox,omitempty"`
	SQLFilter           string   `json:"sqlFilter,omitempty"`
	SortField           string   `json:"sortField,omitempty"`
	SortDirection       string   `json:"sortDirection,omitempty"`
	Limit               int      `json:"limit"`
	Offset              int      `json:"offset"`
	TargetCount         *int     `json:"targetCount,omitempty"`
	IncludeTotalCount   bool     `json:"includeTotalCount,omitempty"`
	Analyze             bool     `json:"analyze,omitempty"`
}

// Engine is the query pipeline: validation, construction, execution.
// Stateless and safe for concurrent use; the registry is immutable and
// the pool synchronizes itself.
type Engine struct {
	registry  *registry.Registry
	validator *Validator
	builder   *Builder
	executor  *Executor
	embedder  Embedder
}

// NewEngine wires the pipeline together. embedder may be nil, in which
// case semantic requests fail validation-side with an embedding error.
func NewEngine(reg *registry.Registry, builder *Builder, executor *Executor, embedder Embedder) *Engine {
	return &Engine{
		registry:  reg,
		validator: NewValidator(reg),
		builder:   builder,
		executor:  executor,
		embedder:  embedder,
	}
}

// Validator exposes the engine's validator for callers that pre-check
// parameters.
func (e *Engine) Validator() *Validator {
	return e.validator
}

// ExecuteQuery validates the request, derives the embedding when search
// text is present, builds the statement(s), and executes them.
// Validation errors short-circuit before touching the pool.
func (e *Engine) ExecuteQuery(ctx context.Context, req Request) (domain.QueryResult, error) {
	normalized, err := e.normalize(ctx, req)
	if err != nil {
		return domain.QueryResult{}, err
	}

	built, err := e.builder.Build(normalized)
	if err != nil {
		return domain.QueryResult{}, err
	}

	return e.executor.Execute(ctx, built, req.Analyze)
}

// normalize runs every validator and resolves the embedding.
func (e *Engine) normalize(ctx context.Context, req Request) (domain.QueryRequest, error) {
	fields, err := e.validator.ValidateFields(req.Fields)
	if err != nil {
		return domain.QueryRequest{}, err
	}

	limit, err := e.validator.ValidateLimit(req.Limit)
	if err != nil {
		return domain.QueryRequest{}, err
	}

	offset, err := e.validator.ValidateOffset(req.Offset)
	if err != nil {
		return domain.QueryRequest{}, err
	}

	normalized := domain.QueryRequest{
		Fields:            fields,
		SearchText:        strings.TrimSpace(req.SearchText),
		Limit:             limit,
		Offset:            offset,
		SortDirection:     domain.SortAsc,
		IncludeTotalCount: req.IncludeTotalCount,
		Analyze:           req.Analyze,
	}

	if strings.EqualFold(req.SortDirection, string(domain.SortDesc)) {
		normalized.SortDirection = domain.SortDesc
	}

	if req.SortField != "" {
		sortField, err := e.validator.ValidateSortField(req.SortField)
		if err != nil {
			return domain.QueryRequest{}, err
		}
		normalized.SortField = sortField
	}

	if req.SimilarityThreshold != nil {
		threshold, err := e.validator.ValidateSimilarityThreshold(*req.SimilarityThreshold)
		if err != nil {
			return domain.QueryRequest{}, err
		}
		normalized.SimilarityThreshold = &threshold
	}

	if req.TargetCount != nil {
		target, err := e.validator.ValidateTargetCount(*req.TargetCount)
		if err != nil {
			return domain.QueryRequest{}, err
		}
		normalized.TargetCount = &target
	}

	if req.SQLFilter != "" {
		fragment, err := e.validator.ValidateSQLFilter(req.SQLFilter)
		if err != nil {
			return domain.QueryRequest{}, err
		}
		normalized.Filters = append(normalized.Filters, domain.AttributeFilter(fragment))
	}

	if req.BBox != "" {
		box, err := e.validator.ValidateBBox(req.BBox)
		if err != nil {
			return domain.QueryRequest{}, err
		}
		normalized.Filters = append(normalized.Filters, domain.SpatialFilter(box))
	}

	if normalized.SearchText != "" {
		if e.embedder == nil {
			return domain.QueryRequest{}, &domain.EmbeddingServiceError{
				Err: errNoEmbedder,
			}
		}
		embedding, err := e.embedder.EmbedText(ctx, normalized.SearchText)
		if err != nil {
			return domain.QueryRequest{}, &domain.EmbeddingServiceError{Err: err}
		}
		normalized.Embedding = embedding
	}

	return normalized, nil
}
