// Package features turns the exported claims table into numeric training
// input. Every transform returns a new value and leaves its input as is.
package features

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/runger/claimguard/internal/dataset"
)

// Missing is the canonical empty cell after ReplaceMarkers.
const Missing = ""

// TrimSpaces strips leading and trailing white space from every cell.
func TrimSpaces(f *dataset.Frame) *dataset.Frame {
	out := f.Clone()
	for _, row := range out.Rows {
		for j, v := range row {
			row[j] = strings.TrimSpace(v)
		}
	}
	return out
}

// DropColumns removes the named columns. Every name must exist.
func DropColumns(f *dataset.Frame, names []string) (*dataset.Frame, error) {
	drop := make(map[int]bool, len(names))
	for _, name := range names {
		idx := f.Index(name)
		if idx < 0 {
			return nil, fmt.Errorf("drop columns: %q not found", name)
		}
		drop[idx] = true
	}

	out := &dataset.Frame{Rows: make([][]string, len(f.Rows))}
	for j, c := range f.Columns {
		if !drop[j] {
			out.Columns = append(out.Columns, c)
		}
	}
	for i, row := range f.Rows {
		kept := make([]string, 0, len(out.Columns))
		for j, v := range row {
			if !drop[j] {
				kept = append(kept, v)
			}
		}
		out.Rows[i] = kept
	}
	return out, nil
}

// ReplaceMarkers replaces every cell equal to one of markers with Missing.
func ReplaceMarkers(f *dataset.Frame, markers []string) *dataset.Frame {
	set := make(map[string]bool, len(markers))
	for _, m := range markers {
		set[m] = true
	}
	out := f.Clone()
	for _, row := range out.Rows {
		for j, v := range row {
			if set[v] {
				row[j] = Missing
			}
		}
	}
	return out
}

// NullCounts returns the number of missing cells per column, in column order.
func NullCounts(f *dataset.Frame) []int {
	counts := make([]int, len(f.Columns))
	for _, row := range f.Rows {
		for j, v := range row {
			if v == Missing {
				counts[j]++
			}
		}
	}
	return counts
}

// IsNullPresent reports whether any cell is missing and lists the
// affected columns in column order.
func IsNullPresent(f *dataset.Frame) (bool, []string) {
	var cols []string
	for j, n := range NullCounts(f) {
		if n > 0 {
			cols = append(cols, f.Columns[j])
		}
	}
	return len(cols) > 0, cols
}

// WriteNullReport writes the per-column missing counts to path as CSV.
func WriteNullReport(path string, f *dataset.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	report := &dataset.Frame{Columns: []string{"columns", "missing values count"}}
	for j, n := range NullCounts(f) {
		report.Rows = append(report.Rows, []string{f.Columns[j], strconv.Itoa(n)})
	}
	return report.WriteCSV(path)
}

// Impute fills the missing cells of cols with the most frequent present
// value of that column. Ties resolve to the lexically smallest value.
func Impute(f *dataset.Frame, cols []string) (*dataset.Frame, error) {
	out := f.Clone()
	for _, name := range cols {
		idx := out.Index(name)
		if idx < 0 {
			return nil, fmt.Errorf("impute: column %q not found", name)
		}

		counts := make(map[string]int)
		for _, row := range out.Rows {
			if v := row[idx]; v != Missing {
				counts[v]++
			}
		}
		if len(counts) == 0 {
			return nil, fmt.Errorf("impute: column %q has no present values", name)
		}

		mode := mostFrequent(counts)
		for _, row := range out.Rows {
			if row[idx] == Missing {
				row[idx] = mode
			}
		}
	}
	return out, nil
}

func mostFrequent(counts map[string]int) string {
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)

	best := values[0]
	for _, v := range values[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}
