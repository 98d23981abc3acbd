package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/paperatlas/internal/domain"
	"github.com/rpattn/paperatlas/internal/embedding/mock"
	"github.com/rpattn/paperatlas/internal/registry"
)

func newTestEngine(t *testing.T, db Querier, embedder Embedder) *Engine {
	t.Helper()
	reg, err := registry.NewPaperRegistry()
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return NewEngine(reg, NewBuilder(reg, 0), NewExecutor(db, 0, nil), embedder)
}

func TestExecuteQuery_ValidationShortCircuitsBeforeDatabase(t *testing.T) {
	db := &fakeQuerier{columns: []string{"paper_id"}}
	engine := newTestEngine(t, db, nil)

	_, err := engine.ExecuteQuery(context.Background(), Request{
		Fields: []string{"paper_id"},
		Limit:  0,
	})
	if err == nil {
		t.Fatalf("expected validation failure")
	}

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if db.queryCount() != 0 {
		t.Fatalf("validation failure must not touch the database, saw %d queries", db.queryCount())
	}
}

func TestExecuteQuery_NonSemanticSkipsEmbedder(t *testing.T) {
	db := &fakeQuerier{
		columns: []string{"paper_id", "title"},
		rows:    [][]any{{"a", "t"}},
	}
	embedder := mock.NewEmbedder()
	engine := newTestEngine(t, db, embedder)

	result, err := engine.ExecuteQuery(context.Background(), Request{
		Fields: []string{"paper_id", "title"},
		Limit:  5,
	})
	if err != nil {
		t.Fatalf("expected query to succeed, got %v", err)
	}

	if embedder.CallCount() != 0 {
		t.Fatalf("embedder must not run without search text")
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected one row, got %d", len(result.Rows))
	}
	if db.queryCount() != 1 {
		t.Fatalf("expected one statement, saw %d", db.queryCount())
	}
	if strings.Contains(db.queries[0], "WITH prefiltered") {
		t.Fatalf("non-semantic query must not use the hybrid shape: %q", db.queries[0])
	}
}

func TestExecuteQuery_SemanticUsesHybridStatement(t *testing.T) {
	db := &fakeQuerier{
		columns: []string{"paper_id", "similarity", "__prefiltered_count"},
		rows:    [][]any{{"a", 0.9, int64(1)}},
	}
	embedder := mock.NewEmbedder()
	engine := newTestEngine(t, db, embedder)

	_, err := engine.ExecuteQuery(context.Background(), Request{
		Fields:     []string{"paper_id"},
		SearchText: "deep learning",
		BBox:       "0,0,10,10",
		Limit:      5,
	})
	if err != nil {
		t.Fatalf("expected query to succeed, got %v", err)
	}

	if embedder.CallCount() != 1 {
		t.Fatalf("expected exactly one embedding call, got %d", embedder.CallCount())
	}
	if !strings.Contains(db.queries[0], "WITH prefiltered") {
		t.Fatalf("expected hybrid statement, got %q", db.queries[0])
	}
}

func TestExecuteQuery_EmbedderFailureIsEmbeddingServiceError(t *testing.T) {
	db := &fakeQuerier{columns: []string{"paper_id"}}
	embedder := mock.NewEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("provider unavailable")
	}
	engine := newTestEngine(t, db, embedder)

	_, err := engine.ExecuteQuery(context.Background(), Request{
		Fields:     []string{"paper_id"},
		SearchText: "deep learning",
		Limit:      5,
	})

	var embeddingErr *domain.EmbeddingServiceError
	if !errors.As(err, &embeddingErr) {
		t.Fatalf("expected EmbeddingServiceError, got %v", err)
	}
	if db.queryCount() != 0 {
		t.Fatalf("embedding failure must not touch the database")
	}
}

func TestExecuteQuery_IdenticalRequestsProduceIdenticalStatements(t *testing.T) {
	db := &fakeQuerier{
		columns: []string{"paper_id"},
		rows:    [][]any{{"a"}},
	}
	engine := newTestEngine(t, db, mock.NewEmbedder())

	req := Request{
		Fields:     []string{"paper_id"},
		SearchText: "graph neural networks",
		SQLFilter:  "citation_count > 10",
		Limit:      5,
	}

	if _, err := engine.ExecuteQuery(context.Background(), req); err != nil {
		t.Fatalf("first execution failed: %v", err)
	}
	if _, err := engine.ExecuteQuery(context.Background(), req); err != nil {
		t.Fatalf("second execution failed: %v", err)
	}

	if db.queries[0] != db.queries[1] {
		t.Fatalf("identical requests produced different statements:\n%q\n%q", db.queries[0], db.queries[1])
	}
}
