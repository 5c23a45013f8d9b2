package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each visible sheet as a titled block. The first
// non-empty row is taken as the header and every later row becomes a
// "Header: value" record so figures keep their column labels after chunking.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var blocks []string
	for _, sheet := range f.GetSheetList() {
		visible, err := f.GetSheetVisible(sheet)
		if err != nil {
			return "", fmt.Errorf("sheet %q visibility: %w", sheet, err)
		}
		if !visible {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		if block := renderSheet(sheet, rows); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

func renderSheet(name string, rows [][]string) string {
	var header []string
	var lines []string
	for _, row := range rows {
		cells := trimCells(row)
		if len(cells) == 0 {
			continue
		}
		if header == nil {
			header = cells
			lines = append(lines, strings.Join(cells, " | "))
			continue
		}
		lines = append(lines, renderRecord(header, cells))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Sheet: " + name + "\n" + strings.Join(lines, "\n")
}

// renderRecord labels each non-empty cell with its header, falling back to
// the column letter where the header is blank or shorter than the row.
func renderRecord(header, cells []string) string {
	fields := make([]string, 0, len(cells))
	for i, v := range cells {
		if v == "" {
			continue
		}
		label := ""
		if i < len(header) {
			label = header[i]
		}
		if label == "" {
			label, _ = excelize.ColumnNumberToName(i + 1)
		}
		fields = append(fields, label+": "+v)
	}
	return strings.Join(fields, "; ")
}

// trimCells trims every cell and drops trailing blanks; an all-blank row
// yields nil.
func trimCells(row []string) []string {
	out := make([]string, len(row))
	last := -1
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
		if out[i] != "" {
			last = i
		}
	}
	return out[:last+1]
}
