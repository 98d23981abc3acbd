package registry

// Side tables joined back to papers.id.
var (
	metricsJoin = Join{Table: "paper_metrics", Alias: "pm", JoinKey: "paper_id"}
	originsJoin = Join{Table: "paper_origins", Alias: "po", JoinKey: "paper_id"}
)

// PaperFields enumerates the canonical fields of the papers corpus.
// map_x/map_y hold the 2-D projection of the abstract embedding.
var PaperFields = []FieldDefinition{
	{Name: "paper_id", Column: "id", Type: FieldTypeUUID},
	{Name: "title", Column: "title", Type: FieldTypeText},
	{Name: "abstract", Column: "abstract", Type: FieldTypeText},
	{Name: "authors", Column: "authors", Type: FieldTypeTextArray},
	{Name: "source", Column: "source", Type: FieldTypeText},
	{Name: "published_at", Column: "published_at", Type: FieldTypeTimestamp},
	{Name: "map_x", Column: "map_x", Type: FieldTypeFloat},
	{Name: "map_y", Column: "map_y", Type: FieldTypeFloat},
	{Name: "embedding", Column: "embedding", Type: FieldTypeVector},
	{Name: "citation_count", Column: "citation_count", Type: FieldTypeInteger, Join: &metricsJoin},
	{Name: "credibility_score", Column: "credibility_score", Type: FieldTypeFloat, Join: &metricsJoin},
	{Name: "reference_count", Column: "reference_count", Type: FieldTypeInteger, Join: &metricsJoin},
	{Name: "country", Column: "country", Type: FieldTypeText, Join: &originsJoin},
	{Name: "institution", Column: "institution", Type: FieldTypeText, Join: &originsJoin},
}

// NewPaperRegistry builds the registry for the papers corpus.
func NewPaperRegistry() (*Registry, error) {
	return New("papers", "p", "paper_id", PaperFields)
}
