package features

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/runger/claimguard/internal/dataset"
)

// Scaler standardizes a fixed set of columns to zero mean and unit
// variance. Columns with zero variance are only centered.
type Scaler struct {
	Columns []string
	Mean    []float64
	Std     []float64
	Fitted  bool
}

// NewScaler returns an unfitted scaler for the named columns.
func NewScaler(columns []string) *Scaler {
	return &Scaler{Columns: append([]string(nil), columns...)}
}

// Fit learns the mean and population standard deviation of each column.
func (s *Scaler) Fit(m *dataset.Matrix) error {
	if m.Len() == 0 {
		return fmt.Errorf("scaler: no rows to fit")
	}

	s.Mean = make([]float64, len(s.Columns))
	s.Std = make([]float64, len(s.Columns))
	col := make([]float64, m.Len())
	for k, name := range s.Columns {
		idx := m.Index(name)
		if idx < 0 {
			return fmt.Errorf("scaler: column %q not found", name)
		}
		for i, row := range m.X {
			col[i] = row[idx]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[k], s.Std[k] = mean, std
	}

	s.Fitted = true
	return nil
}

// Transform returns a copy of m with the scaler's columns standardized.
func (s *Scaler) Transform(m *dataset.Matrix) (*dataset.Matrix, error) {
	if !s.Fitted {
		return nil, ErrNotFitted
	}

	idx := make([]int, len(s.Columns))
	for k, name := range s.Columns {
		idx[k] = m.Index(name)
		if idx[k] < 0 {
			return nil, fmt.Errorf("scaler: column %q not found", name)
		}
	}

	out := m.Clone()
	for _, row := range out.X {
		for k, j := range idx {
			row[j] = (row[j] - s.Mean[k]) / s.Std[k]
		}
	}
	return out, nil
}

// FitTransform fits on m and returns the standardized copy.
func (s *Scaler) FitTransform(m *dataset.Matrix) (*dataset.Matrix, error) {
	if err := s.Fit(m); err != nil {
		return nil, err
	}
	return s.Transform(m)
}

// PresentColumns returns the subset of names that m contains.
func PresentColumns(m *dataset.Matrix, names []string) []string {
	var out []string
	for _, name := range names {
		if m.Index(name) >= 0 {
			out = append(out, name)
		}
	}
	return out
}
