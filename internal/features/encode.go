package features

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/runger/claimguard/internal/dataset"
)

// ErrNotFitted is returned when a transform is used before Fit.
var ErrNotFitted = errors.New("features: transform used before fit")

// Encoding kinds of an input column.
const (
	KindNumeric = "numeric"
	KindOrdinal = "ordinal"
	KindOneHot  = "onehot"
	KindLabel   = "label"
)

// ColumnEncoding records how one input column maps to output features.
type ColumnEncoding struct {
	Column string
	Kind   string
	// Levels are the one-hot levels that get their own feature. The
	// first sorted level is dropped and encoded as all zeros.
	Levels []string
}

// Encoder converts a cleaned frame into a numeric matrix. It is fitted on
// training data and persisted so prediction batches get the same layout.
type Encoder struct {
	LabelColumn  string
	LabelMapping map[string]int
	Ordinal      map[string]map[string]float64
	Columns      []ColumnEncoding
	Features     []string
	Fitted       bool
}

// NewEncoder returns an unfitted encoder.
func NewEncoder(labelColumn string, labelMapping map[string]int, ordinal map[string]map[string]float64) *Encoder {
	return &Encoder{
		LabelColumn:  labelColumn,
		LabelMapping: labelMapping,
		Ordinal:      ordinal,
	}
}

// Fit learns the column layout from f. Configured ordinal columns use
// their mapping, columns whose values all parse as numbers pass through,
// and the remaining text columns are one-hot encoded with the first level
// dropped. The label column is mapped to its class and placed last.
func (e *Encoder) Fit(f *dataset.Frame) error {
	e.Columns = nil
	e.Features = nil

	for j, name := range f.Columns {
		if name == e.LabelColumn {
			continue
		}
		switch {
		case e.Ordinal[name] != nil:
			e.Columns = append(e.Columns, ColumnEncoding{Column: name, Kind: KindOrdinal})
			e.Features = append(e.Features, name)
		case allNumeric(f, j):
			e.Columns = append(e.Columns, ColumnEncoding{Column: name, Kind: KindNumeric})
			e.Features = append(e.Features, name)
		default:
			levels := distinct(f, j)
			if len(levels) > 0 {
				levels = levels[1:]
			}
			e.Columns = append(e.Columns, ColumnEncoding{Column: name, Kind: KindOneHot, Levels: levels})
			for _, lv := range levels {
				e.Features = append(e.Features, name+"_"+lv)
			}
		}
	}

	if f.Index(e.LabelColumn) >= 0 {
		e.Columns = append(e.Columns, ColumnEncoding{Column: e.LabelColumn, Kind: KindLabel})
		e.Features = append(e.Features, e.LabelColumn)
	}

	e.Fitted = true
	return nil
}

// Transform encodes f with the fitted layout. The label column is
// optional so prediction batches without it can be encoded.
func (e *Encoder) Transform(f *dataset.Frame) (*dataset.Matrix, error) {
	if !e.Fitted {
		return nil, ErrNotFitted
	}

	var cols []ColumnEncoding
	var names []string
	for _, c := range e.Columns {
		if c.Kind == KindLabel && f.Index(c.Column) < 0 {
			continue
		}
		if f.Index(c.Column) < 0 {
			return nil, fmt.Errorf("encode: column %q not found", c.Column)
		}
		cols = append(cols, c)
		if c.Kind == KindOneHot {
			for _, lv := range c.Levels {
				names = append(names, c.Column+"_"+lv)
			}
		} else {
			names = append(names, c.Column)
		}
	}

	out := &dataset.Matrix{Columns: names, X: make([][]float64, len(f.Rows))}
	for i, row := range f.Rows {
		vec := make([]float64, 0, len(names))
		for _, c := range cols {
			v := row[f.Index(c.Column)]
			switch c.Kind {
			case KindNumeric:
				x, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("encode: row %d column %q: %q is not numeric", i, c.Column, v)
				}
				vec = append(vec, x)
			case KindOrdinal:
				x, ok := e.Ordinal[c.Column][v]
				if !ok {
					return nil, fmt.Errorf("encode: row %d column %q: unmapped value %q", i, c.Column, v)
				}
				vec = append(vec, x)
			case KindLabel:
				class, ok := e.LabelMapping[v]
				if !ok {
					return nil, fmt.Errorf("encode: row %d label %q has no class", i, v)
				}
				vec = append(vec, float64(class))
			case KindOneHot:
				for _, lv := range c.Levels {
					if v == lv {
						vec = append(vec, 1)
					} else {
						vec = append(vec, 0)
					}
				}
			}
		}
		out.X[i] = vec
	}
	return out, nil
}

// SeparateLabel splits the label column off m and returns the remaining
// features and the integer classes.
func SeparateLabel(m *dataset.Matrix, name string) (*dataset.Matrix, []int, error) {
	idx := m.Index(name)
	if idx < 0 {
		return nil, nil, fmt.Errorf("separate label: column %q not found", name)
	}

	out := &dataset.Matrix{X: make([][]float64, len(m.X))}
	for j, c := range m.Columns {
		if j != idx {
			out.Columns = append(out.Columns, c)
		}
	}

	y := make([]int, len(m.X))
	for i, row := range m.X {
		y[i] = int(row[idx])
		vec := make([]float64, 0, len(row)-1)
		vec = append(vec, row[:idx]...)
		vec = append(vec, row[idx+1:]...)
		out.X[i] = vec
	}
	return out, y, nil
}

func allNumeric(f *dataset.Frame, j int) bool {
	if len(f.Rows) == 0 {
		return false
	}
	for _, row := range f.Rows {
		if _, err := strconv.ParseFloat(row[j], 64); err != nil {
			return false
		}
	}
	return true
}

func distinct(f *dataset.Frame, j int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range f.Rows {
		if !seen[row[j]] {
			seen[row[j]] = true
			out = append(out, row[j])
		}
	}
	sort.Strings(out)
	return out
}
