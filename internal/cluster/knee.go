package cluster

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrNoKnee is returned when the cohesion curve has no detectable knee.
var ErrNoKnee = errors.New("no knee found on the cohesion curve")

// Knee locates the knee of a convex, decreasing curve with the Kneedle
// method and returns the x value at the knee. x must be strictly
// increasing. Sensitivity is Kneedle's S parameter.
func Knee(x, y []float64, sensitivity float64) (float64, error) {
	n := len(x)
	if n != len(y) {
		return 0, fmt.Errorf("knee: %d x values and %d y values", n, len(y))
	}
	if n < 3 {
		return 0, ErrNoKnee
	}

	xMin, xMax := floats.Min(x), floats.Max(x)
	yMin, yMax := floats.Min(y), floats.Max(y)
	if xMax == xMin || yMax == yMin {
		return 0, ErrNoKnee
	}

	xn := make([]float64, n)
	diff := make([]float64, n)
	for i := range x {
		xn[i] = (x[i] - xMin) / (xMax - xMin)
		yn := (y[i] - yMin) / (yMax - yMin)
		// Flip the decreasing curve so the knee becomes a maximum of
		// the difference curve.
		diff[i] = (1 - yn) - xn[i]
	}

	step := 0.0
	for i := 1; i < n; i++ {
		step += xn[i] - xn[i-1]
	}
	step = math.Abs(step / float64(n-1))

	isMax := extrema(diff, func(a, b float64) bool { return a >= b })
	isMin := extrema(diff, func(a, b float64) bool { return a <= b })

	first := -1
	for i, ok := range isMax {
		if ok {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, ErrNoKnee
	}

	threshold, thresholdIdx := 0.0, first
	for i := first; i < n-1; i++ {
		if isMax[i] {
			threshold = diff[i] - sensitivity*step
			thresholdIdx = i
		}
		if isMin[i] {
			threshold = 0
		}
		if diff[i+1] < threshold {
			return x[thresholdIdx], nil
		}
	}
	return 0, ErrNoKnee
}

// extrema marks the relative extrema of d under cmp, comparing each
// point with its neighbours and clipping at the ends.
func extrema(d []float64, cmp func(a, b float64) bool) []bool {
	n := len(d)
	out := make([]bool, n)
	for i := range d {
		prev, next := i-1, i+1
		if prev < 0 {
			prev = 0
		}
		if next > n-1 {
			next = n - 1
		}
		out[i] = cmp(d[i], d[prev]) && cmp(d[i], d[next])
	}
	return out
}
