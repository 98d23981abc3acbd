package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/paperatlas/internal/domain"
)

// Format selects the export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const xlsxSheet = "Results"

// Service writes query results to downloadable files.
type Service struct {
	exportDir string
}

// Option customizes a Service.
type Option func(*Service)

// WithExportDirectory overrides where export files land.
func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

// NewService creates an export service writing to ./exports by default.
func NewService(opts ...Option) *Service {
	service := &Service{exportDir: "exports"}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// ExportResult writes the result rows to a file named after the export
// and returns its path. Columns follow the requested field order; rows
// keep the result's ordering.
func (s *Service) ExportResult(result domain.QueryResult, fields []string, name string, format Format) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("export requires at least one field")
	}

	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	fileName := fmt.Sprintf("%s-%s.%s", sanitizeFileComponent(name), uuid.New().String()[:8], format)
	path := filepath.Join(s.exportDir, fileName)

	switch format {
	case FormatXLSX:
		if err := writeXLSX(path, result, fields); err != nil {
			return "", err
		}
	case FormatCSV:
		if err := writeCSV(path, result, fields); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}

	return path, nil
}

func writeXLSX(path string, result domain.QueryResult, fields []string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetIdx, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(sheetIdx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("remove default sheet: %w", err)
	}

	header := make([]any, len(fields))
	for i, field := range fields {
		header[i] = field
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}

	for rowIdx, row := range result.Rows {
		values := make([]any, len(fields))
		for i, field := range fields {
			values[i] = formatValue(row[field])
		}
		cell, err := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err != nil {
			return fmt.Errorf("compute cell name: %w", err)
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", rowIdx+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeCSV(path string, result domain.QueryResult, fields []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(fields); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(fields))
	for _, row := range result.Rows {
		for i, field := range fields {
			record[i] = formatValue(row[field])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush export file: %w", err)
	}
	return nil
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "export"
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case []byte:
		return string(v)
	case map[string]any, []any, []string:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
