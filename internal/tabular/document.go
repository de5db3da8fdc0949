package tabular

import "errors"

// Placeholder is rendered for cells that are missing from a ragged row.
const Placeholder = ""

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .xlsx, .xls or .csv")
	ErrEmptyDocument     = errors.New("document is empty")
)

// Document is the normalized form of an uploaded table. Rows are not padded to
// the column count, cells are read positionally.
type Document struct {
	Columns  []string
	Rows     [][]string
	Filename string
}

func (d *Document) Cell(row, col int) string {
	if row < 0 || row >= len(d.Rows) {
		return Placeholder
	}
	cells := d.Rows[row]
	if col < 0 || col >= len(cells) {
		return Placeholder
	}
	return cells[col]
}

// ColumnIndex returns the position of the first column with the given name, or -1.
func (d *Document) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Preview returns a copy holding at most n data rows.
func (d *Document) Preview(n int) *Document {
	rows := d.Rows
	if n >= 0 && len(rows) > n {
		rows = rows[:n]
	}
	out := &Document{
		Columns:  append([]string(nil), d.Columns...),
		Rows:     make([][]string, len(rows)),
		Filename: d.Filename,
	}
	for i, r := range rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}
