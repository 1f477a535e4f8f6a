package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is row-oriented export content with a fixed column set.
type Table struct {
	Title    string
	Subtitle string
	Columns  []string
	Rows     [][]string
}

// CSV renders the table as CSV bytes. Title and subtitle are omitted, CSV
// consumers want clean tabular data.
func CSV(t Table) ([]byte, error) {
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("export: table has no columns")
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("export: row %d has %d cells, want %d", i, len(row), len(t.Columns))
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
