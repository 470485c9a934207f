// Package report renders a user's record history as an xlsx spreadsheet:
// one row per committed entry, one column per topic plus date and
// rating, wrapped text and fixed column widths for readability.
package report

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"mindlog-bot/internal/catalog"
	"mindlog-bot/internal/domain"
)

const (
	dateColumnWidth  = 15
	topicColumnWidth = 30
	dateLayout       = "2006-01-02 15:04"
)

// Formatter builds spreadsheets for a fixed catalog. Column order
// follows topic order; columns are additive across catalog revisions.
type Formatter struct {
	cat *catalog.Catalog
}

func NewFormatter(cat *catalog.Catalog) (*Formatter, error) {
	if cat == nil {
		return nil, errors.New("report: catalog must not be nil")
	}
	return &Formatter{cat: cat}, nil
}

// Build renders the records in input order. Zero records produce a
// header-only sheet, not an error.
func (f *Formatter) Build(records []domain.Record) ([]byte, error) {
	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()
	sheet := wb.GetSheetName(0)

	headers := f.headers()
	for col, h := range headers {
		if err := setCell(wb, sheet, col+1, 1, h); err != nil {
			return nil, err
		}
	}

	for row, rec := range records {
		values := f.rowValues(rec)
		for col, v := range values {
			if err := setCell(wb, sheet, col+1, row+2, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.applyShape(wb, sheet, len(headers), len(records)+1); err != nil {
		return nil, err
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("report: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *Formatter) headers() []string {
	headers := make([]string, 0, f.cat.Len()+2)
	headers = append(headers, "Date")
	for _, t := range f.cat.Topics() {
		headers = append(headers, t.Title)
	}
	return append(headers, "Rating")
}

func (f *Formatter) rowValues(rec domain.Record) []string {
	values := make([]string, 0, f.cat.Len()+2)
	values = append(values, rec.CreatedAt.Format(dateLayout))
	for _, t := range f.cat.Topics() {
		values = append(values, rec.Answers[t.ID])
	}
	return append(values, fmt.Sprintf("%d", rec.Rating))
}

// applyShape sets the fixed column widths and wraps every populated
// cell, top-aligned.
func (f *Formatter) applyShape(wb *excelize.File, sheet string, cols, rows int) error {
	if err := wb.SetColWidth(sheet, "A", "A", dateColumnWidth); err != nil {
		return fmt.Errorf("report: set date column width: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return fmt.Errorf("report: last column name: %w", err)
	}
	if cols > 1 {
		if err := wb.SetColWidth(sheet, "B", lastCol, topicColumnWidth); err != nil {
			return fmt.Errorf("report: set topic column widths: %w", err)
		}
	}

	style, err := wb.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("report: create cell style: %w", err)
	}
	lastCell, err := excelize.CoordinatesToCellName(cols, rows)
	if err != nil {
		return fmt.Errorf("report: last cell name: %w", err)
	}
	if err := wb.SetCellStyle(sheet, "A1", lastCell, style); err != nil {
		return fmt.Errorf("report: apply cell style: %w", err)
	}
	return nil
}

func setCell(wb *excelize.File, sheet string, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("report: cell name (%d,%d): %w", col, row, err)
	}
	if err := wb.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("report: set cell %s: %w", cell, err)
	}
	return nil
}
