package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
)

// utf8BOM makes spreadsheet tools read names such as "Peñaranda" as UTF-8.
const utf8BOM = "\ufeff"

var errNoHeaders = errors.New("export requires at least one header")

// CSVExporter writes a roster dataset as one header line plus one line per
// learner. Titles are omitted so the file can be re-imported.
type CSVExporter struct {
	bom bool
}

// CSVOption adjusts a CSVExporter.
type CSVOption func(*CSVExporter)

// WithUTF8BOM prefixes the output with a byte order mark.
func WithUTF8BOM() CSVOption {
	return func(e *CSVExporter) { e.bom = true }
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render encodes data. Missing cells are written empty.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errNoHeaders
	}

	var buf bytes.Buffer
	if e.bom {
		buf.WriteString(utf8BOM)
	}
	w := csv.NewWriter(&buf)
	records := make([][]string, 0, len(data.Rows)+1)
	records = append(records, data.Headers)
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = neutralizeFormula(row[header])
		}
		records = append(records, record)
	}
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("write roster csv: %w", err)
	}
	return buf.Bytes(), nil
}

// neutralizeFormula keeps applicant-typed text from being evaluated as a
// spreadsheet formula when the roster is opened.
func neutralizeFormula(cell string) string {
	if cell == "" {
		return cell
	}
	if strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
