package query

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rpattn/paperatlas/internal/domain"
	"github.com/rpattn/paperatlas/internal/registry"
)

// MaxLimit is the hard ceiling on rows per request.
const MaxLimit = 50000

// Statement-altering keywords rejected anywhere in a raw filter,
// regardless of context, since the fragment is spliced into the WHERE
// clause as text and only identifier/keyword screening is performed.
var forbiddenKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "CREATE", "EXEC", "UNION",
}

// SQL words permitted inside filter fragments without resolving against
// the registry.
var allowedFilterWords = map[string]struct{}{
	"AND": {}, "OR": {}, "NOT": {}, "IN": {}, "IS": {}, "NULL": {},
	"LIKE": {}, "ILIKE": {}, "BETWEEN": {}, "TRUE": {}, "FALSE": {},
	"ANY": {}, "ALL": {},
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Numeric literals are blanked out before identifier screening so the
// exponent of scientific notation (1e5) is not mistaken for one.
var numericLiteralPattern = regexp.MustCompile(`\b[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?`)

// Validator normalizes untrusted request parameters against the field
// registry. All methods are pure and independently testable.
type Validator struct {
	registry *registry.Registry
}

// NewValidator builds a validator over an immutable registry.
func NewValidator(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

// ValidateFields checks every requested canonical name against the
// registry and returns the deduplicated, order-preserving list.
func (v *Validator) ValidateFields(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, domain.NewValidationError(domain.InvalidField, "field list is empty")
	}

	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		if !v.registry.Has(name) {
			return nil, domain.NewValidationError(domain.InvalidField, "unknown field %q", name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}

	return result, nil
}

// ValidateBBox parses exactly four comma-separated floats and reorders
// out-of-order corners so min <= max on each axis.
func (v *Validator) ValidateBBox(text string) (domain.BoundingBox, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 4 {
		return domain.BoundingBox{}, domain.NewValidationError(domain.InvalidBoundingBox,
			"expected 4 comma-separated values, got %d", len(parts))
	}

	values := make([]float64, 4)
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return domain.BoundingBox{}, domain.NewValidationError(domain.InvalidBoundingBox,
				"non-numeric value %q", strings.TrimSpace(part))
		}
		// ParseFloat accepts NaN/Inf tokens; NaN in particular would
		// defeat the corner reordering below since its comparisons are
		// always false.
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return domain.BoundingBox{}, domain.NewValidationError(domain.InvalidBoundingBox,
				"non-finite value %q", strings.TrimSpace(part))
		}
		values[i] = value
	}

	box := domain.BoundingBox{MinX: values[0], MinY: values[1], MaxX: values[2], MaxY: values[3]}
	if box.MinX > box.MaxX {
		box.MinX, box.MaxX = box.MaxX, box.MinX
	}
	if box.MinY > box.MaxY {
		box.MinY, box.MaxY = box.MaxY, box.MinY
	}

	return box, nil
}

// ValidateSQLFilter screens a raw predicate fragment: statement-altering
// keywords and statement separators are rejected outright, and every
// remaining identifier outside string literals must resolve in the
// registry or be a permitted SQL word. Screening, not parsing, is the
// security boundary here; values inside single-quoted literals are
// ignored for identifier resolution.
func (v *Validator) ValidateSQLFilter(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", domain.NewValidationError(domain.InvalidSqlFilter, "filter is empty")
	}
	if strings.Contains(trimmed, ";") {
		return "", domain.NewValidationError(domain.InvalidSqlFilter, "statement separator not allowed")
	}

	upper := strings.ToUpper(trimmed)
	for _, keyword := range forbiddenKeywords {
		if containsWord(upper, keyword) {
			return "", domain.NewValidationError(domain.InvalidSqlFilter, "keyword %s not allowed", keyword)
		}
	}

	stripped, err := stripStringLiterals(trimmed)
	if err != nil {
		return "", err
	}
	stripped = numericLiteralPattern.ReplaceAllString(stripped, " ")

	for _, ident := range identifierPattern.FindAllString(stripped, -1) {
		if _, ok := allowedFilterWords[strings.ToUpper(ident)]; ok {
			continue
		}
		if !v.registry.Has(ident) {
			return "", domain.NewValidationError(domain.InvalidSqlFilter, "unknown identifier %q", ident)
		}
	}

	return trimmed, nil
}

// ValidateLimit bounds the page size to [1, MaxLimit].
func (v *Validator) ValidateLimit(n int) (int, error) {
	if n < 1 || n > MaxLimit {
		return 0, domain.NewValidationError(domain.InvalidLimit,
			"limit %d outside [1, %d]", n, MaxLimit)
	}
	return n, nil
}

// ValidateOffset rejects negative offsets.
func (v *Validator) ValidateOffset(n int) (int, error) {
	if n < 0 {
		return 0, domain.NewValidationError(domain.InvalidOffset, "offset %d is negative", n)
	}
	return n, nil
}

// ValidateSortField resolves a sort field against the registry.
func (v *Validator) ValidateSortField(name string) (string, error) {
	if !v.registry.Has(name) {
		return "", domain.NewValidationError(domain.InvalidSortField, "unknown sort field %q", name)
	}
	return name, nil
}

// ValidateSimilarityThreshold bounds the threshold to [0, 1].
func (v *Validator) ValidateSimilarityThreshold(x float64) (float64, error) {
	if x < 0 || x > 1 {
		return 0, domain.NewValidationError(domain.InvalidThreshold,
			"similarity threshold %g outside [0, 1]", x)
	}
	return x, nil
}

// ValidateTargetCount requires a positive desired result size.
func (v *Validator) ValidateTargetCount(n int) (int, error) {
	if n < 1 {
		return 0, domain.NewValidationError(domain.InvalidTargetCount,
			"target count %d must be positive", n)
	}
	return n, nil
}

func containsWord(upper, word string) bool {
	idx := 0
	for {
		pos := strings.Index(upper[idx:], word)
		if pos < 0 {
			return false
		}
		pos += idx
		before := pos == 0 || !isWordByte(upper[pos-1])
		afterIdx := pos + len(word)
		after := afterIdx >= len(upper) || !isWordByte(upper[afterIdx])
		if before && after {
			return true
		}
		idx = pos + len(word)
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// stripStringLiterals blanks out single-quoted literals ('' escapes
// included) so their contents are not mistaken for identifiers.
func stripStringLiterals(text string) (string, error) {
	var out strings.Builder
	inLiteral := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\'' {
			if inLiteral && i+1 < len(text) && text[i+1] == '\'' {
				i++
				continue
			}
			inLiteral = !inLiteral
			out.WriteByte(' ')
			continue
		}
		if inLiteral {
			out.WriteByte(' ')
			continue
		}
		out.WriteByte(c)
	}
	if inLiteral {
		return "", domain.NewValidationError(domain.InvalidSqlFilter, "unterminated string literal")
	}
	return out.String(), nil
}
