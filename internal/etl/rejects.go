package etl

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
)

// WriteRejects writes rejected records to a CSV file: the row number, the
// joined reasons, then every raw column the records carried.
func WriteRejects(path string, rejected []MappedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rejects file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var columns []string
	for _, r := range rejected {
		for k := range r.Raw.Data {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"row", "reasons"}, columns...)); err != nil {
		return fmt.Errorf("write rejects header: %w", err)
	}
	for _, r := range rejected {
		line := make([]string, 0, len(columns)+2)
		line = append(line, fmt.Sprint(r.Row), JoinReasons(r.Errors))
		for _, c := range columns {
			v := r.Raw.Data[c]
			if v == nil {
				line = append(line, "")
			} else {
				line = append(line, fmt.Sprint(v))
			}
		}
		if err := w.Write(line); err != nil {
			return fmt.Errorf("write rejects row %d: %w", r.Row, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush rejects file: %w", err)
	}
	return f.Close()
}
