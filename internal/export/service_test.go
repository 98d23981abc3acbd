package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/paperatlas/internal/domain"
)

func sampleResult() domain.QueryResult {
	published := time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)
	return domain.QueryResult{
		Rows: []map[string]any{
			{"paper_id": "a1", "title": "Attention Is All You Need", "citation_count": int64(90000), "published_at": published},
			{"paper_id": "a2", "title": "BERT", "citation_count": nil, "published_at": published},
		},
	}
}

func TestExportResultCSV(t *testing.T) {
	service := NewService(WithExportDirectory(t.TempDir()))

	path, err := service.ExportResult(sampleResult(), []string{"paper_id", "title", "citation_count", "published_at"}, "Transformer Papers", FormatCSV)
	if err != nil {
		t.Fatalf("failed to export csv: %v", err)
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "transformer-papers-") || !strings.HasSuffix(base, ".csv") {
		t.Fatalf("unexpected export file name %s", base)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(records))
	}
	if records[0][1] != "title" {
		t.Fatalf("expected field-ordered header, got %v", records[0])
	}
	if records[1][2] != "90000" {
		t.Fatalf("expected formatted citation count, got %q", records[1][2])
	}
	if records[2][2] != "" {
		t.Fatalf("expected empty cell for null value, got %q", records[2][2])
	}
	if records[1][3] != "2024-03-14T09:30:00Z" {
		t.Fatalf("expected RFC3339 timestamp, got %q", records[1][3])
	}
}

func TestExportResultXLSX(t *testing.T) {
	service := NewService(WithExportDirectory(t.TempDir()))

	path, err := service.ExportResult(sampleResult(), []string{"paper_id", "title"}, "papers", FormatXLSX)
	if err != nil {
		t.Fatalf("failed to export xlsx: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Results")
	if err != nil {
		t.Fatalf("failed to read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	if rows[0][0] != "paper_id" || rows[0][1] != "title" {
		t.Fatalf("unexpected header row %v", rows[0])
	}
	if rows[1][1] != "Attention Is All You Need" {
		t.Fatalf("unexpected first data row %v", rows[1])
	}
}

func TestExportResultRejectsBadInput(t *testing.T) {
	service := NewService(WithExportDirectory(t.TempDir()))

	if _, err := service.ExportResult(sampleResult(), nil, "papers", FormatCSV); err == nil {
		t.Fatalf("expected empty field list rejection")
	}
	if _, err := service.ExportResult(sampleResult(), []string{"title"}, "papers", Format("pdf")); err == nil {
		t.Fatalf("expected unsupported format rejection")
	}
}

func TestSanitizeFileComponent(t *testing.T) {
	cases := map[string]string{
		"Transformer Papers":  "transformer-papers",
		"  ../etc/passwd  ":   "etc-passwd",
		"":                    "export",
		"---":                 "export",
		"snake_case_ok":       "snake_case_ok",
		"Query #3":            "query--3",
	}
	for input, want := range cases {
		if got := sanitizeFileComponent(input); got != want {
			t.Fatalf("sanitize %q: expected %q, got %q", input, want, got)
		}
	}
}
