package core

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"product-enhancer/internal/tabular"

	"github.com/xuri/excelize/v2"
)

const resultSheet = "Sheet1"

// RowText renders the selected columns of a row as "<column>: <value>" blocks.
// Columns missing from the document and empty cells are skipped.
func RowText(doc *tabular.Document, textColumns []string, row int) string {
	var b strings.Builder
	for _, column := range textColumns {
		idx := doc.ColumnIndex(column)
		if idx < 0 {
			continue
		}
		value := doc.Cell(row, idx)
		if value == tabular.Placeholder {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n\n", column, value)
	}
	return b.String()
}

func ResultName(filename string, now time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return fmt.Sprintf("%s_enhanced_%s.xlsx", stem, now.Format("20060102_150405"))
}

// WriteWorkbook writes the document with one column per attribute. Attributes
// that already exist as a column are filled in place when a value was extracted.
func WriteWorkbook(doc *tabular.Document, attributes []string, results map[int]map[string]string) (*bytes.Buffer, error) {
	header := append([]string(nil), doc.Columns...)
	attrColumns := make(map[string]int, len(attributes))
	for _, attr := range attributes {
		idx := doc.ColumnIndex(attr)
		if idx < 0 {
			idx = len(header)
			header = append(header, attr)
		}
		attrColumns[attr] = idx
	}

	book := excelize.NewFile()
	defer book.Close()

	writeRow := func(rowNum int, cells []string) error {
		for i, value := range cells {
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
			if err != nil {
				return err
			}
			if err := book.SetCellStr(resultSheet, cell, value); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeRow(1, header); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	for i := range doc.Rows {
		cells := make([]string, len(header))
		for c := range doc.Columns {
			cells[c] = doc.Cell(i, c)
		}
		for attr, value := range results[i] {
			if idx, ok := attrColumns[attr]; ok && value != "" {
				cells[idx] = value
			}
		}
		if err := writeRow(i+2, cells); err != nil {
			return nil, fmt.Errorf("error writing row %d: %w", i, err)
		}
	}

	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error serializing workbook: %w", err)
	}
	return buf, nil
}
