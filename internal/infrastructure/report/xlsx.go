// Package report renders batch results as XLSX workbooks.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
	ErrorsSheet  = "Errors"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var resultHeaders = []string{
	"#",
	"File",
	"Success",
	"Invoice ID",
	"Prompt",
	"Issuer",
	"Invoice Number",
	"Amount (tax incl.)",
	"Currency",
	"Completeness",
	"Valid",
	"Validation Errors",
	"Processing Time (s)",
	"Error",
}

// BatchWorkbook returns the workbook bytes for one batch run.
func BatchWorkbook(result *domain.BatchProcessingResult) ([]byte, error) {
	if result == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build batch workbook", fmt.Errorf("result is nil"))
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeResults(f, result.Results); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	writeSummary(f, result)
	if _, err := f.NewSheet(ErrorsSheet); err != nil {
		return nil, fmt.Errorf("create errors sheet: %w", err)
	}
	writeErrors(f, result.Errors)

	index, _ := f.GetSheetIndex(ResultsSheet)
	f.SetActiveSheet(index)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeResults(f *excelize.File, results []domain.WorkflowResult) error {
	for i, h := range resultHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		_ = f.SetCellValue(ResultsSheet, cell, h)
	}

	for i, res := range results {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(ResultsSheet, cell, v)
		}

		write(1, i+1)
		write(2, stringValue(res.FileInfo, "filename"))
		write(3, res.Success)
		write(4, res.InvoiceID)
		write(5, res.PromptKey)
		write(6, stringValue(res.ExtractedData, "issuer"))
		write(7, stringValue(res.ExtractedData, "main_invoice_number"))
		write(8, stringValue(res.ExtractedData, "amount_inclusive_tax"))
		write(9, stringValue(res.ExtractedData, "currency"))
		if res.Validation != nil {
			write(10, res.Validation.Score)
			write(11, res.Validation.IsValid)
			write(12, strings.Join(res.Validation.Errors, "; "))
		}
		write(13, res.ProcessingTime)
		write(14, res.ErrorMessage)
	}

	_ = f.SetColWidth(ResultsSheet, "A", "A", 6)
	_ = f.SetColWidth(ResultsSheet, "B", "B", 32)
	_ = f.SetColWidth(ResultsSheet, "C", "C", 10)
	_ = f.SetColWidth(ResultsSheet, "D", "E", 38)
	_ = f.SetColWidth(ResultsSheet, "F", "G", 26)
	_ = f.SetColWidth(ResultsSheet, "H", "K", 14)
	_ = f.SetColWidth(ResultsSheet, "L", "L", 60)
	_ = f.SetColWidth(ResultsSheet, "M", "M", 14)
	_ = f.SetColWidth(ResultsSheet, "N", "N", 60)
	return nil
}

func writeSummary(f *excelize.File, result *domain.BatchProcessingResult) {
	rows := [][2]any{
		{"run_id", result.RunID},
		{"total_files", result.TotalFiles},
		{"successful_files", result.SuccessfulFiles},
		{"failed_files", result.FailedFiles},
		{"processing_time", result.ProcessingTime},
	}
	keys := make([]string, 0, len(result.Summary))
	for key := range result.Summary {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		rows = append(rows, [2]any{key, fmt.Sprint(result.Summary[key])})
	}

	for i, kv := range rows {
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 24)
	_ = f.SetColWidth(SummarySheet, "B", "B", 40)
}

func writeErrors(f *excelize.File, errs []domain.BatchError) {
	_ = f.SetCellValue(ErrorsSheet, "A1", "Index")
	_ = f.SetCellValue(ErrorsSheet, "B1", "File")
	_ = f.SetCellValue(ErrorsSheet, "C1", "Reason")
	for i, e := range errs {
		row := i + 2
		_ = f.SetCellValue(ErrorsSheet, fmt.Sprintf("A%d", row), e.Index)
		_ = f.SetCellValue(ErrorsSheet, fmt.Sprintf("B%d", row), e.Filename)
		_ = f.SetCellValue(ErrorsSheet, fmt.Sprintf("C%d", row), e.Reason)
	}
	_ = f.SetColWidth(ErrorsSheet, "B", "B", 32)
	_ = f.SetColWidth(ErrorsSheet, "C", "C", 80)
}

func stringValue(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
