package registry

import (
	"testing"
)

func TestNewPaperRegistry(t *testing.T) {
	reg, err := NewPaperRegistry()
	if err != nil {
		t.Fatalf("failed to build paper registry: %v", err)
	}

	if reg.BaseTable() != "papers" || reg.BaseAlias() != "p" {
		t.Fatalf("unexpected base table binding: %s AS %s", reg.BaseTable(), reg.BaseAlias())
	}
	if reg.PrimaryKeyColumn() != "p.id" {
		t.Fatalf("expected primary key column p.id, got %s", reg.PrimaryKeyColumn())
	}

	def, ok := reg.Lookup("citation_count")
	if !ok {
		t.Fatalf("expected citation_count to resolve")
	}
	if def.Join == nil || def.Join.Alias != "pm" {
		t.Fatalf("expected citation_count to live on the metrics join, got %+v", def.Join)
	}
	if got := def.QualifiedColumn(reg.BaseAlias()); got != "pm.citation_count" {
		t.Fatalf("expected pm.citation_count, got %s", got)
	}

	title, ok := reg.Lookup("title")
	if !ok {
		t.Fatalf("expected title to resolve")
	}
	if got := title.QualifiedColumn(reg.BaseAlias()); got != "p.title" {
		t.Fatalf("expected p.title, got %s", got)
	}

	if reg.Has("no_such_field") {
		t.Fatalf("unknown field should not resolve")
	}
}

func TestJoinsForDeduplicatesByTable(t *testing.T) {
	reg, err := NewPaperRegistry()
	if err != nil {
		t.Fatalf("failed to build paper registry: %v", err)
	}

	joins := reg.JoinsFor([]string{"citation_count", "credibility_score", "title", "country"})
	if len(joins) != 2 {
		t.Fatalf("expected two joins, got %d: %+v", len(joins), joins)
	}
	// stable table-name ordering
	if joins[0].Table != "paper_metrics" || joins[1].Table != "paper_origins" {
		t.Fatalf("unexpected join order: %+v", joins)
	}

	if joins := reg.JoinsFor([]string{"title", "abstract"}); len(joins) != 0 {
		t.Fatalf("base-table fields need no joins, got %+v", joins)
	}
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	base := FieldDefinition{Name: "id", Column: "id", Type: FieldTypeUUID}

	_, err := New("papers", "p", "id", []FieldDefinition{base, {Name: "id", Column: "other"}})
	if err == nil {
		t.Fatalf("expected duplicate name rejection")
	}

	j1 := &Join{Table: "paper_metrics", Alias: "pm", JoinKey: "paper_id"}
	j2 := &Join{Table: "paper_metrics", Alias: "metrics", JoinKey: "paper_id"}
	_, err = New("papers", "p", "id", []FieldDefinition{
		base,
		{Name: "citation_count", Column: "citation_count", Type: FieldTypeInteger, Join: j1},
		{Name: "reference_count", Column: "reference_count", Type: FieldTypeInteger, Join: j2},
	})
	if err == nil {
		t.Fatalf("expected conflicting join rejection")
	}

	_, err = New("papers", "p", "missing", []FieldDefinition{base})
	if err == nil {
		t.Fatalf("expected undefined primary key rejection")
	}
}

func TestNamesPreservesDeclarationOrder(t *testing.T) {
	reg, err := New("papers", "p", "a", []FieldDefinition{
		{Name: "a", Column: "a", Type: FieldTypeUUID},
		{Name: "b", Column: "b", Type: FieldTypeText},
		{Name: "c", Column: "c", Type: FieldTypeFloat},
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	names := reg.Names()
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Fatalf("expected declaration order, got %v", names)
	}
}
