package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kansa/internal/models"
)

// extractExcel returns one page per visible sheet. Each page starts with a
// "Sheet: <name>" line so retrieved chunks keep their origin; rows follow one
// per line with cells separated by tabs. Blank rows are dropped.
func extractExcel(content []byte) ([]models.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var pages []models.Page
	for _, sheet := range f.GetSheetList() {
		if visible, err := f.GetSheetVisible(sheet); err == nil && !visible {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		lines := []string{"Sheet: " + sheet}
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, models.Page{Number: len(pages) + 1, Text: strings.Join(lines, "\n")})
	}
	return pages, nil
}
