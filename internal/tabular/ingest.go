package tabular

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTSV
	FormatXLSX
	FormatXLS
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatTSV:
		return "tsv"
	case FormatXLSX:
		return "xlsx"
	case FormatXLS:
		return "xls"
	default:
		return "unknown"
	}
}

const (
	mimeCSV  = "text/csv"
	mimeTSV  = "text/tab-separated-values"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
)

var extensionFormats = map[string]Format{
	".csv":  FormatCSV,
	".tsv":  FormatTSV,
	".xlsx": FormatXLSX,
	".xls":  FormatXLS,
}

var mimeFormats = map[string]Format{
	mimeCSV:  FormatCSV,
	mimeTSV:  FormatTSV,
	mimeXLSX: FormatXLSX,
	mimeXLS:  FormatXLS,
}

// Allowed reports whether the filename carries one of the supported extensions.
func Allowed(filename string) bool {
	_, ok := extensionFormats[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// DetectFormat resolves the decoder from the filename extension, then the mime
// hint. Content is only sniffed when neither carries any signature at all.
func DetectFormat(data []byte, filename, mimeHint string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := extensionFormats[ext]; ok {
		return f
	}

	hint, _, _ := strings.Cut(strings.ToLower(mimeHint), ";")
	hint = strings.TrimSpace(hint)
	if f, ok := mimeFormats[hint]; ok {
		return f
	}

	if ext != "" || hint != "" {
		return FormatUnknown
	}

	detected := mimetype.Detect(data)
	for m, f := range mimeFormats {
		if detected.Is(m) {
			return f
		}
	}
	return FormatUnknown
}

// Ingest decodes raw file bytes into a Document. It never fails on ragged rows.
func Ingest(data []byte, filename, mimeHint string) (*Document, error) {
	format := DetectFormat(data, filename, mimeHint)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedFormat, filename)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}

	var (
		table [][]string
		err   error
	)
	switch format {
	case FormatCSV:
		table = decodeDelimited(data, ',')
	case FormatTSV:
		table = decodeDelimited(data, '\t')
	case FormatXLSX:
		table, err = decodeXLSX(data)
	case FormatXLS:
		table, err = decodeXLS(data)
	}
	if err != nil {
		slog.Warn("unable to decode spreadsheet", "filename", filename, "format", format, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}

	if len(table) == 0 {
		return nil, ErrEmptyDocument
	}

	return &Document{Columns: table[0], Rows: table[1:], Filename: filename}, nil
}
