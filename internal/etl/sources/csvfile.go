package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"arcsync/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local, comma-delimited, UTF-8 CSV file with a header
// row. Values are kept as text; typing is the mapper's job.

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVFile reads one CSV file.
type CSVFile struct {
	Path string
}

func (s *CSVFile) Name() string { return "csv " + filepath.Base(s.Path) }

func (s *CSVFile) Read(ctx context.Context) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		headers, rows, err := readCSVFile(s.Path)
		if err != nil {
			errCh <- err
			return
		}

		for i, row := range rows {
			data := make(map[string]any, len(headers))
			for j, h := range headers {
				if j < len(row) {
					data[h] = csvValue(row[j])
				} else {
					data[h] = nil
				}
			}
			select {
			case out <- etl.Record{Row: i + 1, Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

func readCSVFile(path string) ([]string, [][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open file: %w", etl.ErrSourceUnavailable, err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	// Short rows are padded with nulls instead of failing the file.
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse csv: %w", etl.ErrSourceUnavailable, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: empty csv file, header row required", etl.ErrSourceUnavailable)
	}

	headers := make([]string, len(records[0]))
	seen := make(map[string]bool, len(headers))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, nil, fmt.Errorf("%w: header column %d is empty", etl.ErrSourceUnavailable, i+1)
		}
		if seen[h] {
			return nil, nil, fmt.Errorf("%w: duplicate header %q", etl.ErrSourceUnavailable, h)
		}
		seen[h] = true
		headers[i] = h
	}

	rows := records[1:]
	for i, row := range rows {
		if len(row) > len(headers) && !blankTail(row[len(headers):]) {
			return nil, nil, fmt.Errorf("%w: row %d has %d columns, header has %d",
				etl.ErrSourceUnavailable, i+1, len(row), len(headers))
		}
	}
	return headers, rows, nil
}

// csvValue trims a cell; empty cells become null.
func csvValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func blankTail(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
