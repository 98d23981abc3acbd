package analyzer

import (
	"encoding/json"
	"fmt"

	"github.com/rpattn/paperatlas/internal/domain"
)

// explainNode mirrors the EXPLAIN (FORMAT JSON) node shape.
type explainNode struct {
	NodeType        string        `json:"Node Type"`
	RelationName    string        `json:"Relation Name"`
	IndexName       string        `json:"Index Name"`
	ActualRows      int64         `json:"Actual Rows"`
	PlanRows        int64         `json:"Plan Rows"`
	ActualTotalTime float64       `json:"Actual Total Time"`
	ActualLoops     int64         `json:"Actual Loops"`
	Plans           []explainNode `json:"Plans"`
}

type explainRoot struct {
	Plan          explainNode `json:"Plan"`
	ExecutionTime float64     `json:"Execution Time"`
}

// ParsePlan decodes EXPLAIN (ANALYZE, FORMAT JSON) output into a plan
// tree with per-node self times (total time minus children's totals,
// scaled by loop count).
func ParsePlan(raw []byte) (*domain.PlanNode, float64, error) {
	var roots []explainRoot
	if err := json.Unmarshal(raw, &roots); err != nil {
		return nil, 0, fmt.Errorf("decode plan json: %w", err)
	}
	if len(roots) == 0 {
		return nil, 0, fmt.Errorf("plan json is empty")
	}

	return convertNode(roots[0].Plan), roots[0].ExecutionTime, nil
}

func convertNode(src explainNode) *domain.PlanNode {
	loops := src.ActualLoops
	if loops < 1 {
		loops = 1
	}
	totalMs := src.ActualTotalTime * float64(loops)

	node := &domain.PlanNode{
		NodeType:     src.NodeType,
		RelationName: src.RelationName,
		IndexName:    src.IndexName,
		ActualRows:   src.ActualRows,
		PlanRows:     src.PlanRows,
		TotalTimeMs:  totalMs,
	}

	childTotal := 0.0
	for _, child := range src.Plans {
		converted := convertNode(child)
		childTotal += converted.TotalTimeMs
		node.Children = append(node.Children, converted)
	}

	node.SelfTimeMs = totalMs - childTotal
	if node.SelfTimeMs < 0 {
		node.SelfTimeMs = 0
	}

	return node
}
