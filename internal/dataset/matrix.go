package dataset

// Matrix is a dense numeric table with named columns.
type Matrix struct {
	Columns []string
	X       [][]float64
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	return len(m.X)
}

// Index returns the position of column name, or -1.
func (m *Matrix) Index(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	out := &Matrix{
		Columns: append([]string(nil), m.Columns...),
		X:       make([][]float64, len(m.X)),
	}
	for i, row := range m.X {
		out.X[i] = append([]float64(nil), row...)
	}
	return out
}

// Subset returns a copy holding the rows at idx, in that order.
func (m *Matrix) Subset(idx []int) *Matrix {
	out := &Matrix{
		Columns: append([]string(nil), m.Columns...),
		X:       make([][]float64, len(idx)),
	}
	for i, r := range idx {
		out.X[i] = append([]float64(nil), m.X[r]...)
	}
	return out
}

// SubsetLabels returns the labels at idx, in that order.
func SubsetLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}
