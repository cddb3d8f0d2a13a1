package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Sheet names in the workbook.
const (
	SheetSummary  = "Summary"
	SheetOffers   = "Offers"
	SheetProducts = "Products"
)

// XLSXSink appends rows to a local workbook, creating it and its sheets on
// first use. Row 1 of every sheet is kept equal to the header layout.
type XLSXSink struct {
	Path      string
	MaxOffers int
}

func NewXLSXSink(path string, maxOffers int) *XLSXSink {
	if maxOffers <= 0 {
		maxOffers = DefaultMaxOffers
	}
	return &XLSXSink{Path: path, MaxOffers: maxOffers}
}

func (s *XLSXSink) Write(records []Record) error {
	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	var summaries, offers, products [][]string
	for _, r := range records {
		summaries = append(summaries, SummaryRow(r))
		offers = append(offers, OfferRows(r, s.MaxOffers)...)
		if row := ProductRow(r); row != nil {
			products = append(products, row)
		}
	}

	sheets := []struct {
		name    string
		headers []string
		rows    [][]string
	}{
		{SheetSummary, SummaryHeaders, summaries},
		{SheetOffers, OfferHeaders, offers},
		{SheetProducts, ProductHeaders, products},
	}
	for _, sh := range sheets {
		if err := appendSheet(f, sh.name, sh.headers, sh.rows); err != nil {
			return err
		}
	}
	if idx, err := f.GetSheetIndex(SheetSummary); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	if dir := filepath.Dir(s.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create workbook dir: %w", err)
		}
	}
	if err := f.SaveAs(s.Path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func (s *XLSXSink) open() (*excelize.File, error) {
	if _, err := os.Stat(s.Path); err == nil {
		f, err := excelize.OpenFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		return f, nil
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	return f, nil
}

// appendSheet ensures the sheet and its header row, then writes rows after
// the last used row.
func appendSheet(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("sheet %s: %w", sheet, err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
	}

	existing, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(existing) == 0 || !sameRow(existing[0], headers) {
		if err := setRow(f, sheet, 1, headers); err != nil {
			return err
		}
		if err := styleHeader(f, sheet, len(headers)); err != nil {
			return err
		}
	}

	next := len(existing) + 1
	if next < 2 {
		next = 2
	}
	for _, row := range rows {
		if err := setRow(f, sheet, next, row); err != nil {
			return err
		}
		next++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
	}
	return nil
}

func styleHeader(f *excelize.File, sheet string, width int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(width, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func sameRow(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
