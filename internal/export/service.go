// Package export writes batches of extraction results as XLSX workbooks and
// JSON lines.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/w2-extractor/internal/common"
	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/result"
)

const (
	ResultsSheet = "W-2 Results"
	SummarySheet = "Summary"
)

// Row is one processed document.
type Row struct {
	Path   string
	Hash   string
	Status string
	Result result.ExtractionResult
}

// Service produces export artifacts for processed batches.
type Service struct {
	table  fieldspec.Table
	logger *slog.Logger
}

func NewService(table fieldspec.Table, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if table == nil {
		table = fieldspec.W2()
	}
	return &Service{table: table, logger: logger}
}

// Headers lists the results sheet columns in order.
func (s *Service) Headers() []string {
	h := []string{"File", "Document Type", "Method", "Confidence"}
	for _, fs := range s.table {
		h = append(h, fmt.Sprintf("Box %s %s", fs.Box, fs.Name))
	}
	return append(h, "Message", "Diagnostics", "Request ID", "Status")
}

// ExportResultsXLSX returns an XLSX workbook (as bytes) with one row per document
// and a per-method summary sheet.
func (s *Service) ExportResultsXLSX(ctx context.Context, rows []Row) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return nil, common.NewAppError("EXPORT_ERROR", "rename sheet", err)
	}
	for i, h := range s.Headers() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(ResultsSheet, cell, h)
	}

	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(ResultsSheet, cell, v)
		}

		res := r.Result
		write(1, r.Path)
		write(2, string(res.DocumentType))
		write(3, res.Method)
		write(4, res.Confidence)
		col := 5
		for _, fs := range s.table {
			if v, ok := res.Fields[fs.Name]; ok {
				write(col, v.Any())
			}
			col++
		}
		write(col, res.Message)
		write(col+1, truncate(strings.Join(res.Diagnostics, "; "), 500))
		write(col+2, res.RequestID)
		write(col+3, r.Status)
	}

	last, _ := excelize.ColumnNumberToName(len(s.Headers()))
	_ = f.SetColWidth(ResultsSheet, "A", "A", 40)
	_ = f.SetColWidth(ResultsSheet, "B", "D", 16)
	_ = f.SetColWidth(ResultsSheet, "E", last, 18)
	_ = f.SetPanes(ResultsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := s.writeSummary(f, rows); err != nil {
		return nil, common.NewAppError("EXPORT_ERROR", "summary sheet", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, common.NewAppError("EXPORT_ERROR", "xlsx write", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeSummary(f *excelize.File, rows []Row) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Result.Method]++
	}
	methods := make([]string, 0, len(counts))
	for m := range counts {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	_ = f.SetCellValue(SummarySheet, "A1", "Method")
	_ = f.SetCellValue(SummarySheet, "B1", "Documents")
	for i, m := range methods {
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", i+2), m)
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", i+2), counts[m])
	}
	total := len(methods) + 2
	_ = f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", total), "Total")
	_ = f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", total), len(rows))
	_ = f.SetColWidth(SummarySheet, "A", "A", 22)
	return nil
}

// WriteXLSX writes the workbook for rows to path.
func (s *Service) WriteXLSX(ctx context.Context, path string, rows []Row) error {
	b, err := s.ExportResultsXLSX(ctx, rows)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return common.NewAppError("EXPORT_ERROR", "write "+path, err)
	}
	return nil
}

// WriteJSONL writes one result object per line, with the source path under "file".
func (s *Service) WriteJSONL(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		m := r.Result.ToMap()
		m["file"] = r.Path
		if r.Hash != "" {
			m["sha256"] = r.Hash
		}
		if r.Status != "" {
			m["status"] = r.Status
		}
		if err := enc.Encode(m); err != nil {
			return common.NewAppError("EXPORT_ERROR", "jsonl encode", err)
		}
	}
	s.logger.Info("export.jsonl.ok", "rows", len(rows))
	return nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
