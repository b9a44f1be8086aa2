package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Penalties of the linear classifier.
const (
	PenaltyL1 = "l1"
	PenaltyL2 = "l2"
)

// LogisticRegression is a regularized binary logistic regression fitted
// with full-batch gradient descent. The L1 penalty uses a proximal
// (soft-threshold) step. C is the inverse regularization strength and the
// intercept is not penalized.
type LogisticRegression struct {
	Penalty string
	C       float64
	MaxIter int
	Tol     float64

	W      []float64
	B      float64
	Fitted bool
}

// NewLogisticRegression returns an unfitted linear classifier.
func NewLogisticRegression(penalty string, c float64) *LogisticRegression {
	return &LogisticRegression{Penalty: penalty, C: c, MaxIter: 1000, Tol: 1e-6}
}

// Name implements Classifier.
func (m *LogisticRegression) Name() string { return AlgorithmLogistic }

// Fit implements Classifier. Weights start at zero so fits are
// deterministic.
func (m *LogisticRegression) Fit(x [][]float64, y []int) error {
	if err := checkXY(x, y); err != nil {
		return err
	}
	if m.Penalty != PenaltyL1 && m.Penalty != PenaltyL2 {
		return fmt.Errorf("logistic regression: unknown penalty %q", m.Penalty)
	}
	if m.C <= 0 {
		return fmt.Errorf("logistic regression: C must be positive, got %g", m.C)
	}

	n, p := len(x), len(x[0])
	lambda := 1 / (m.C * float64(n))

	// Step size from the Lipschitz bound of the mean log-loss gradient.
	maxSq := 0.0
	for _, row := range x {
		maxSq = math.Max(maxSq, floats.Dot(row, row))
	}
	lipschitz := 0.25 * (maxSq + 1)
	if m.Penalty == PenaltyL2 {
		lipschitz += lambda
	}
	step := 1 / lipschitz

	w := make([]float64, p)
	b := 0.0
	grad := make([]float64, p)
	for it := 0; it < m.MaxIter; it++ {
		clear(grad)
		gb := 0.0
		for i, row := range x {
			r := sigmoid(floats.Dot(w, row)+b) - float64(y[i])
			floats.AddScaled(grad, r, row)
			gb += r
		}
		floats.Scale(1/float64(n), grad)
		gb /= float64(n)
		if m.Penalty == PenaltyL2 {
			floats.AddScaled(grad, lambda, w)
		}

		delta := math.Abs(step * gb)
		b -= step * gb
		for j := range w {
			next := w[j] - step*grad[j]
			if m.Penalty == PenaltyL1 {
				next = softThreshold(next, step*lambda)
			}
			delta = math.Max(delta, math.Abs(next-w[j]))
			w[j] = next
		}
		if delta < m.Tol {
			break
		}
	}

	m.W, m.B, m.Fitted = w, b, true
	return nil
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	}
	return 0
}

// PredictProba implements Classifier.
func (m *LogisticRegression) PredictProba(x [][]float64) ([]float64, error) {
	if !m.Fitted {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.W) {
			return nil, fmt.Errorf("logistic regression: row %d has %d features, model expects %d", i, len(row), len(m.W))
		}
		out[i] = sigmoid(floats.Dot(m.W, row) + m.B)
	}
	return out, nil
}

// Predict implements Classifier.
func (m *LogisticRegression) Predict(x [][]float64) ([]int, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return threshold(proba), nil
}
