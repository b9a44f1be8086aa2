package features

import (
	"math/rand"
	"sort"
)

// Balance over-samples every minority class with replacement until each
// class has as many rows as the majority class. Original rows keep their
// positions and the sampled copies are appended.
func Balance(x [][]float64, y []int, seed int64) ([][]float64, []int) {
	byClass := make(map[int][]int)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}

	majority := 0
	classes := make([]int, 0, len(byClass))
	for c, rows := range byClass {
		classes = append(classes, c)
		if len(rows) > majority {
			majority = len(rows)
		}
	}
	sort.Ints(classes)

	outX := make([][]float64, 0, majority*len(classes))
	outY := make([]int, 0, majority*len(classes))
	for i := range x {
		outX = append(outX, append([]float64(nil), x[i]...))
		outY = append(outY, y[i])
	}

	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		rows := byClass[c]
		for n := len(rows); n < majority; n++ {
			pick := rows[rng.Intn(len(rows))]
			outX = append(outX, append([]float64(nil), x[pick]...))
			outY = append(outY, c)
		}
	}
	return outX, outY
}
