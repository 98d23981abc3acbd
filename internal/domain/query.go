package domain

// SortDirection controls ORDER BY direction for non-semantic queries.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// BoundingBox is an axis-aligned viewport rectangle over the 2-D map
// projection. Always normalized so MinX <= MaxX and MinY <= MaxY.
type BoundingBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// CenterX returns the x coordinate of the rectangle centroid.
func (b BoundingBox) CenterX() float64 {
	return (b.MinX + b.MaxX) / 2
}

// CenterY returns the y coordinate of the rectangle centroid.
func (b BoundingBox) CenterY() float64 {
	return (b.MinY + b.MaxY) / 2
}

// FilterSpec is either an attribute predicate (a validated SQL fragment
// over canonical field names) or a spatial predicate (a normalized
// bounding box). Exactly one of the two is set.
type FilterSpec struct {
	Attribute string
	Spatial   *BoundingBox
}

// AttributeFilter wraps a validated SQL fragment as a FilterSpec.
func AttributeFilter(fragment string) FilterSpec {
	return FilterSpec{Attribute: fragment}
}

// SpatialFilter wraps a normalized bounding box as a FilterSpec.
func SpatialFilter(box BoundingBox) FilterSpec {
	return FilterSpec{Spatial: &box}
}

// QueryRequest carries one validated search request through the pipeline.
// Embedding is derived from SearchText by the embedding provider before
// query construction; when nil the request is non-semantic.
type QueryRequest struct {
	Fields              []string
	SearchText          string
	Embedding           []float32
	SimilarityThreshold *float64
	Filters             []FilterSpec
	SortField           string
	SortDirection       SortDirection
	Limit               int
	Offset              int
	TargetCount         *int
	IncludeTotalCount   bool
	Analyze             bool
}

// EffectiveLimit resolves the limit/target_count interaction: target_count
// is a desired result size, limit is a hard ceiling, so the smaller wins.
func (r QueryRequest) EffectiveLimit() int {
	limit := r.Limit
	if r.TargetCount != nil && *r.TargetCount < limit {
		limit = *r.TargetCount
	}
	return limit
}

// HasSpatialFilter reports whether any filter is a bounding box.
func (r QueryRequest) HasSpatialFilter() bool {
	for _, f := range r.Filters {
		if f.Spatial != nil {
			return true
		}
	}
	return false
}

// IsSemantic reports whether vector ranking is requested.
func (r QueryRequest) IsSemantic() bool {
	return len(r.Embedding) > 0
}

// QueryResult is the per-request result contract. Produced fresh per
// request and never mutated after return.
type QueryResult struct {
	Rows            []map[string]any `json:"rows"`
	TotalCount      *int             `json:"totalCount,omitempty"`
	ExecutionTimeMs float64          `json:"executionTimeMs"`
	Warnings        []string         `json:"warnings"`
	QueryPlan       *PlanNode        `json:"queryPlan,omitempty"`
}

// PlanNode is one node of a captured execution plan tree.
type PlanNode struct {
	NodeType     string      `json:"nodeType"`
	RelationName string      `json:"relationName,omitempty"`
	IndexName    string      `json:"indexName,omitempty"`
	ActualRows   int64       `json:"actualRows"`
	PlanRows     int64       `json:"planRows"`
	TotalTimeMs  float64     `json:"totalTimeMs"`
	SelfTimeMs   float64     `json:"selfTimeMs"`
	Children     []*PlanNode `json:"children,omitempty"`
}
