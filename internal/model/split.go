package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TrainTestSplit shuffles the rows with a seeded generator and holds out
// ceil(testFraction*n) of them for testing.
func TrainTestSplit(x [][]float64, y []int, testFraction float64, seed int64) (trainX, testX [][]float64, trainY, testY []int, err error) {
	n := len(x)
	if n != len(y) {
		return nil, nil, nil, nil, fmt.Errorf("split: %d rows but %d labels", n, len(y))
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("split: test fraction %g not in (0, 1)", testFraction)
	}
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, nil, nil, fmt.Errorf("split: %d rows cannot be split with test fraction %g", n, testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	for k, i := range perm {
		if k < nTest {
			testX = append(testX, x[i])
			testY = append(testY, y[i])
		} else {
			trainX = append(trainX, x[i])
			trainY = append(trainY, y[i])
		}
	}
	return trainX, testX, trainY, testY, nil
}

// Fold is one cross-validation split of row indices.
type Fold struct {
	Train []int
	Valid []int
}

// StratifiedKFolds splits rows into k folds that keep the class mix. The
// rows of each class are dealt round-robin in their original order, so
// the folds are deterministic.
func StratifiedKFolds(y []int, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("folds: k must be at least 2, got %d", k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("folds: %d rows cannot fill %d folds", len(y), k)
	}

	byClass := make(map[int][]int)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	member := make([]int, len(y))
	next := 0
	for _, c := range classes {
		for _, i := range byClass[c] {
			member[i] = next % k
			next++
		}
	}

	folds := make([]Fold, k)
	for i, f := range member {
		for j := range folds {
			if j == f {
				folds[j].Valid = append(folds[j].Valid, i)
			} else {
				folds[j].Train = append(folds[j].Train, i)
			}
		}
	}
	return folds, nil
}

func subset(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	sx := make([][]float64, len(idx))
	sy := make([]int, len(idx))
	for k, i := range idx {
		sx[k], sy[k] = x[i], y[i]
	}
	return sx, sy
}
