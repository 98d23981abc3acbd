package domain

import "github.com/google/uuid"

// QueryStatus reports the outcome of one sub-query in a fan-out.
type QueryStatus string

const (
	QueryCompleted QueryStatus = "COMPLETED"
	QueryFailed    QueryStatus = "FAILED"
)

// ColorScheme maps a field value to a display color, with a fallback for
// unmapped values.
type ColorScheme struct {
	Colors       map[string]string `json:"colors"`
	DefaultColor string            `json:"defaultColor"`
}

// ColorFor resolves the color for a value, falling back to the default.
func (s ColorScheme) ColorFor(value string) string {
	if color, ok := s.Colors[value]; ok {
		return color
	}
	return s.DefaultColor
}

// QueryDefinition describes one independently filtered and colored
// sub-query of a visualization request.
type QueryDefinition struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Source       string       `json:"source"`
	ColorByField string       `json:"colorByField"`
	Filters      []FilterSpec `json:"-"`
	ColorScheme  ColorScheme  `json:"colorScheme"`
	Symbol       string       `json:"symbol"`
}

// QueryDefinitionResult pairs one definition with its isolated outcome.
// A failed definition carries its error message and never affects
// sibling definitions.
type QueryDefinitionResult struct {
	QueryID      uuid.UUID    `json:"queryId"`
	Name         string       `json:"name"`
	Status       QueryStatus  `json:"status"`
	Result       *QueryResult `json:"result,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}

// MultiQueryResult is the fan-out output. TotalExecutionTimeMs is the
// wall-clock span of the whole fan-out, not the sum of sub-query times.
type MultiQueryResult struct {
	Results              []QueryDefinitionResult `json:"results"`
	TotalExecutionTimeMs float64                 `json:"totalExecutionTimeMs"`
	Warnings             []string                `json:"warnings"`
}
