// Package export writes interpreted reports to spreadsheets.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// WriteXLSX writes one sheet per category in the usual category order. The
// header row is the sorted union of the record keys; converted values keep
// their type so amounts, dates and flags stay usable in a spreadsheet.
func WriteXLSX(w io.Writer, reports map[models.Category][]models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for _, category := range sheetOrder(reports) {
		name := string(category)
		if first {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", name, err)
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}

		if err := writeSheet(f, name, reports[category]); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func sheetOrder(reports map[models.Category][]models.Record) []models.Category {
	order := make([]models.Category, 0, len(reports))
	for _, c := range models.Categories {
		if _, ok := reports[c]; ok {
			order = append(order, c)
		}
	}
	return order
}

func writeSheet(f *excelize.File, sheet string, records []models.Record) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet %s: %w", sheet, err)
	}

	header := headerOf(records)
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := sw.SetRow("A1", row); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	for i, r := range records {
		row := make([]any, len(header))
		for j, key := range header {
			row[j] = cellValue(r[key])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet %s: %w", sheet, err)
	}
	return nil
}

func headerOf(records []models.Record) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		for k := range r {
			seen[k] = true
		}
	}
	header := make([]string, 0, len(seen))
	for k := range seen {
		header = append(header, k)
	}
	sort.Strings(header)
	return header
}

func cellValue(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case string, float64, bool, time.Time:
		return v
	default:
		return fmt.Sprint(v)
	}
}
