package query

import (
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/rpattn/paperatlas/internal/domain"
	"github.com/rpattn/paperatlas/internal/registry"
)

// DefaultPrefilterCap bounds how many rows the prefilter stage carries
// into vector ranking. Tuned empirically against planner behavior;
// dataset- and index-dependent, so it stays configurable.
const DefaultPrefilterCap = 50000

// Canonical names of the projection and embedding columns.
const (
	fieldMapX      = "map_x"
	fieldMapY      = "map_y"
	fieldEmbedding = "embedding"
)

// PrefilterTruncatedWarning is the row-key the executor uses to detect
// prefilter truncation; the warning text attached to results.
func PrefilterTruncatedWarning(capRows int) string {
	return fmt.Sprintf("prefilter truncated at %d rows; spatial ranking may be approximate", capRows)
}

// prefilterCountColumn is stripped from result rows by the executor and
// compared against the cap to detect truncation.
const prefilterCountColumn = "__prefiltered_count"

// similarityColumn labels the cosine similarity in hybrid results. A
// null similarity marks the count-only placeholder row emitted when the
// final page is empty; ranked rows always carry a non-null value since
// the embedding column is null-guarded.
const similarityColumn = "similarity"

// Statement is one executable SQL statement with bound parameters.
// Identifiers are always registry-resolved before splicing; values are
// always bound, never inlined.
type Statement struct {
	SQL  string
	Args []any
}

// BuiltQuery is the builder output: the main statement, an optional
// count statement sharing the same WHERE clause, and metadata the
// executor needs to post-process rows.
type BuiltQuery struct {
	Main         Statement
	Count        *Statement
	Fields       []string
	Semantic     bool
	PrefilterCap int
}

// Builder assembles statements from validated requests. It never sees
// unvalidated input; the Validator is the security boundary.
type Builder struct {
	registry     *registry.Registry
	prefilterCap int
}

// NewBuilder creates a builder over the registry with the given
// prefilter cap (0 means DefaultPrefilterCap).
func NewBuilder(reg *registry.Registry, prefilterCap int) *Builder {
	if prefilterCap <= 0 {
		prefilterCap = DefaultPrefilterCap
	}
	return &Builder{registry: reg, prefilterCap: prefilterCap}
}

type argList struct {
	args []any
}

func (a *argList) add(value any) string {
	a.args = append(a.args, value)
	return fmt.Sprintf("$%d", len(a.args))
}

// Build produces the statement(s) for a validated request. Requests with
// an embedding delegate to the hybrid two-stage shape; everything else
// is a flat SELECT ordered by the sort field.
func (b *Builder) Build(req domain.QueryRequest) (BuiltQuery, error) {
	for _, name := range req.Fields {
		if !b.registry.Has(name) {
			return BuiltQuery{}, domain.NewValidationError(domain.InvalidField, "unknown field %q", name)
		}
	}

	args := &argList{}

	where, filterFields, err := b.buildWhere(req, args)
	if err != nil {
		return BuiltQuery{}, err
	}

	built := BuiltQuery{
		Fields:       req.Fields,
		Semantic:     req.IsSemantic(),
		PrefilterCap: b.prefilterCap,
	}

	if req.IsSemantic() {
		built.Main = b.buildHybrid(req, args, where, filterFields)
	} else {
		built.Main = b.buildFlat(req, args, where, filterFields)
	}

	if req.IncludeTotalCount {
		count := b.buildCount(req)
		built.Count = &count
	}

	return built, nil
}

// buildWhere assembles the WHERE conjunction: attribute fragments with
// registry-resolved identifiers, point-in-rectangle containment for each
// bounding box, a not-null guard on the projection columns whenever a
// spatial predicate is present, and a not-null guard on the embedding
// column whenever ranking is requested. Returns the canonical fields
// referenced by filters so the caller can join their side tables.
func (b *Builder) buildWhere(req domain.QueryRequest, args *argList) ([]string, []string, error) {
	base := b.registry.BaseAlias()
	var clauses []string
	var filterFields []string

	mapX, _ := b.registry.Lookup(fieldMapX)
	mapY, _ := b.registry.Lookup(fieldMapY)
	embedding, _ := b.registry.Lookup(fieldEmbedding)

	for _, filter := range req.Filters {
		switch {
		case filter.Spatial != nil:
			box := filter.Spatial
			clauses = append(clauses, fmt.Sprintf("%s BETWEEN %s AND %s",
				mapX.QualifiedColumn(base), args.add(box.MinX), args.add(box.MaxX)))
			clauses = append(clauses, fmt.Sprintf("%s BETWEEN %s AND %s",
				mapY.QualifiedColumn(base), args.add(box.MinY), args.add(box.MaxY)))
		case filter.Attribute != "":
			rewritten, used, err := b.rewriteFragment(filter.Attribute)
			if err != nil {
				return nil, nil, err
			}
			clauses = append(clauses, "("+rewritten+")")
			filterFields = append(filterFields, used...)
		}
	}

	if req.HasSpatialFilter() {
		clauses = append(clauses, mapX.QualifiedColumn(base)+" IS NOT NULL")
		clauses = append(clauses, mapY.QualifiedColumn(base)+" IS NOT NULL")
	}
	if req.IsSemantic() {
		clauses = append(clauses, embedding.QualifiedColumn(base)+" IS NOT NULL")
	}

	return clauses, filterFields, nil
}

// rewriteFragment replaces canonical field names in a validated filter
// fragment with alias-qualified column references, leaving string
// literals untouched. Returns the canonical names it resolved.
func (b *Builder) rewriteFragment(fragment string) (string, []string, error) {
	var out strings.Builder
	var used []string
	base := b.registry.BaseAlias()

	i := 0
	for i < len(fragment) {
		c := fragment[i]

		if c == '\'' {
			end := i + 1
			for end < len(fragment) {
				if fragment[end] == '\'' {
					if end+1 < len(fragment) && fragment[end+1] == '\'' {
						end += 2
						continue
					}
					break
				}
				end++
			}
			if end >= len(fragment) {
				return "", nil, domain.NewValidationError(domain.InvalidSqlFilter, "unterminated string literal")
			}
			out.WriteString(fragment[i : end+1])
			i = end + 1
			continue
		}

		if isIdentStart(c) {
			end := i + 1
			for end < len(fragment) && isWordByte(fragment[end]) {
				end++
			}
			word := fragment[i:end]
			if def, ok := b.registry.Lookup(word); ok {
				out.WriteString(def.QualifiedColumn(base))
				used = append(used, word)
			} else {
				out.WriteString(word)
			}
			i = end
			continue
		}

		out.WriteByte(c)
		i++
	}

	return out.String(), used, nil
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// buildFlat emits the non-semantic statement: plain SELECT with the
// requested sort (default primary key) and a primary-key tie-break for
// deterministic pagination.
func (b *Builder) buildFlat(req domain.QueryRequest, args *argList, where []string, filterFields []string) Statement {
	base := b.registry.BaseAlias()
	pk := b.registry.PrimaryKeyColumn()

	sortField := req.SortField
	if sortField == "" {
		sortField = b.registry.PrimaryKey()
	}
	sortDef, _ := b.registry.Lookup(sortField)
	direction := string(domain.SortAsc)
	if req.SortDirection == domain.SortDesc {
		direction = string(domain.SortDesc)
	}

	joinFields := append(append([]string{}, req.Fields...), filterFields...)
	joinFields = append(joinFields, sortField)

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(b.selectList(req.Fields))
	sql.WriteString(" FROM ")
	sql.WriteString(b.registry.BaseTable())
	sql.WriteString(" ")
	sql.WriteString(base)
	sql.WriteString(b.joinClauses(joinFields))
	if len(where) > 0 {
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(where, " AND "))
	}
	sql.WriteString(" ORDER BY ")
	sql.WriteString(sortDef.QualifiedColumn(base))
	sql.WriteString(" ")
	sql.WriteString(direction)
	if sortField != b.registry.PrimaryKey() {
		sql.WriteString(", ")
		sql.WriteString(pk)
		sql.WriteString(" ASC")
	}
	sql.WriteString(" LIMIT ")
	sql.WriteString(args.add(req.EffectiveLimit()))
	sql.WriteString(" OFFSET ")
	sql.WriteString(args.add(req.Offset))

	return Statement{SQL: sql.String(), Args: args.args}
}

// buildHybrid emits the two-stage statement as one server-side query.
//
// Stage one (prefiltered CTE) selects primary keys and raw embeddings
// satisfying every non-vector predicate, capped at the prefilter cap.
// When a bounding box is present, rows are ordered by squared distance
// to the box centroid before the cap, so truncation keeps the rows
// nearest the viewport center. Stage two ranks the prefiltered set by
// cosine distance to the query embedding, applies the similarity
// threshold strictly after ranking, and takes the final LIMIT with a
// primary-key tie-break.
//
// The outer SELECT is driven from prefilter_stats so that an empty page
// (threshold excluded every ranked row, or the offset ran past the end)
// still yields one count-only row. The executor strips it; without it a
// truncated prefilter would go unreported exactly when truncation may
// have caused the emptiness.
func (b *Builder) buildHybrid(req domain.QueryRequest, args *argList, where []string, filterFields []string) Statement {
	base := b.registry.BaseAlias()
	pk := b.registry.PrimaryKeyColumn()
	embedding, _ := b.registry.Lookup(fieldEmbedding)
	mapX, _ := b.registry.Lookup(fieldMapX)
	mapY, _ := b.registry.Lookup(fieldMapY)

	var sql strings.Builder
	sql.WriteString("WITH prefiltered AS (SELECT ")
	sql.WriteString(pk)
	sql.WriteString(" AS pk, ")
	sql.WriteString(embedding.QualifiedColumn(base))
	sql.WriteString(" AS emb FROM ")
	sql.WriteString(b.registry.BaseTable())
	sql.WriteString(" ")
	sql.WriteString(base)
	sql.WriteString(b.joinClauses(filterFields))
	if len(where) > 0 {
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(where, " AND "))
	}
	if box := firstSpatial(req.Filters); box != nil {
		sql.WriteString(" ORDER BY power(")
		sql.WriteString(mapX.QualifiedColumn(base))
		sql.WriteString(" - ")
		sql.WriteString(args.add(box.CenterX()))
		sql.WriteString(", 2) + power(")
		sql.WriteString(mapY.QualifiedColumn(base))
		sql.WriteString(" - ")
		sql.WriteString(args.add(box.CenterY()))
		sql.WriteString(", 2) ASC")
	}
	sql.WriteString(" LIMIT ")
	sql.WriteString(args.add(b.prefilterCap))
	sql.WriteString(")")

	sql.WriteString(", ranked AS (SELECT pf.pk, pf.emb <=> ")
	sql.WriteString(args.add(pgvector.NewVector(req.Embedding)))
	sql.WriteString(" AS distance FROM prefiltered pf)")

	sql.WriteString(", prefilter_stats AS (SELECT count(*) AS n FROM prefiltered)")

	sql.WriteString(", page AS (SELECT r.pk, r.distance FROM ranked r")
	if req.SimilarityThreshold != nil {
		// Cosine similarity s maps to distance 1-s; rows below the
		// similarity floor are dropped, never substituted.
		sql.WriteString(" WHERE r.distance <= ")
		sql.WriteString(args.add(1 - *req.SimilarityThreshold))
	}
	sql.WriteString(" ORDER BY r.distance ASC, r.pk ASC LIMIT ")
	sql.WriteString(args.add(req.EffectiveLimit()))
	sql.WriteString(" OFFSET ")
	sql.WriteString(args.add(req.Offset))
	sql.WriteString(")")

	sql.WriteString(" SELECT ")
	sql.WriteString(b.selectList(req.Fields))
	sql.WriteString(", 1 - g.distance AS ")
	sql.WriteString(similarityColumn)
	sql.WriteString(", s.n AS ")
	sql.WriteString(prefilterCountColumn)
	sql.WriteString(" FROM prefilter_stats s LEFT JOIN page g ON TRUE LEFT JOIN ")
	sql.WriteString(b.registry.BaseTable())
	sql.WriteString(" ")
	sql.WriteString(base)
	sql.WriteString(" ON ")
	sql.WriteString(pk)
	sql.WriteString(" = g.pk")
	sql.WriteString(b.joinClauses(req.Fields))
	sql.WriteString(" ORDER BY g.distance ASC, g.pk ASC")

	return Statement{SQL: sql.String(), Args: args.args}
}

// buildCount shares the WHERE conjunction but is issued as a separate
// statement with its own placeholder numbering; counting is a different
// query shape and must not influence the ranking statement's plan.
func (b *Builder) buildCount(req domain.QueryRequest) Statement {
	args := &argList{}
	where, filterFields, _ := b.buildWhere(req, args)

	var sql strings.Builder
	sql.WriteString("SELECT COUNT(*) FROM ")
	sql.WriteString(b.registry.BaseTable())
	sql.WriteString(" ")
	sql.WriteString(b.registry.BaseAlias())
	sql.WriteString(b.joinClauses(filterFields))
	if len(where) > 0 {
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(where, " AND "))
	}

	return Statement{SQL: sql.String(), Args: args.args}
}

// selectList renders alias-qualified columns labelled with their
// canonical names.
func (b *Builder) selectList(fields []string) string {
	base := b.registry.BaseAlias()
	parts := make([]string, 0, len(fields))
	for _, name := range fields {
		def, _ := b.registry.Lookup(name)
		parts = append(parts, def.QualifiedColumn(base)+" AS "+name)
	}
	return strings.Join(parts, ", ")
}

// joinClauses renders the deduplicated LEFT JOINs needed to reach every
// field in names. A table is joined at most once.
func (b *Builder) joinClauses(names []string) string {
	joins := b.registry.JoinsFor(names)
	if len(joins) == 0 {
		return ""
	}

	pk := b.registry.PrimaryKeyColumn()
	var sql strings.Builder
	for _, join := range joins {
		sql.WriteString(fmt.Sprintf(" LEFT JOIN %s %s ON %s.%s = %s",
			join.Table, join.Alias, join.Alias, join.JoinKey, pk))
	}
	return sql.String()
}

func firstSpatial(filters []domain.FilterSpec) *domain.BoundingBox {
	for _, f := range filters {
		if f.Spatial != nil {
			return f.Spatial
		}
	}
	return nil
}
