package tabular

import (
	"strings"
)

const byteOrderMark = "\ufeff"

// decodeDelimited splits on line breaks and the delimiter. Delimiters inside
// quoted fields are not honoured; quote characters are simply removed.
func decodeDelimited(data []byte, delimiter rune) [][]string {
	text := strings.TrimPrefix(string(data), byteOrderMark)

	var table [][]string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		table = append(table, splitLine(line, delimiter))
	}
	return table
}

func splitLine(line string, delimiter rune) []string {
	fields := strings.Split(line, string(delimiter))
	cells := make([]string, len(fields))
	for i, f := range fields {
		cells[i] = normalizeCell(strings.ReplaceAll(f, `"`, ""))
	}
	return cells
}

func normalizeCell(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return Placeholder
	}
	return v
}
