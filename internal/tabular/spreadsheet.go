package tabular

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

func decodeXLSX(data []byte) ([][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error opening xlsx workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("error reading sheet '%s': %w", sheets[0], err)
	}

	return compactRows(rows), nil
}

func decodeXLS(data []byte) (table [][]string, err error) {
	// The legacy decoder panics on some malformed containers.
	defer func() {
		if r := recover(); r != nil {
			table, err = nil, fmt.Errorf("error reading xls workbook: %v", r)
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("error opening xls workbook: %w", err)
	}

	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("xls workbook has no sheets")
	}

	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for c := 0; c <= row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}

	return compactRows(rows), nil
}

// compactRows trims every cell, drops trailing empty cells and fully blank rows.
// The header is padded with unnamed columns up to the widest data row.
func compactRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	width := 0
	for _, row := range rows {
		cells := make([]string, len(row))
		last := -1
		for i, v := range row {
			cells[i] = normalizeCell(v)
			if cells[i] != Placeholder {
				last = i
			}
		}
		if last < 0 {
			continue
		}
		out = append(out, cells[:last+1])
		width = max(width, last+1)
	}

	if len(out) > 0 {
		for len(out[0]) < width {
			out[0] = append(out[0], Placeholder)
		}
	}
	return out
}
