package model

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/runger/claimguard/internal/config"
)

// Candidate is one point of a hyperparameter grid.
type Candidate struct {
	Algorithm string
	Params    string
	New       func() Classifier
}

// LogisticCandidates expands the linear grid. C varies slowest, matching
// the alphabetical parameter order of the search, so ties resolve to the
// smallest C first.
func LogisticCandidates(grid config.LogisticGrid) []Candidate {
	var out []Candidate
	for _, c := range grid.C {
		for _, penalty := range grid.Penalties {
			c, penalty := c, penalty
			out = append(out, Candidate{
				Algorithm: AlgorithmLogistic,
				Params:    fmt.Sprintf("C=%s penalty=%s", strconv.FormatFloat(c, 'g', -1, 64), penalty),
				New:       func() Classifier { return NewLogisticRegression(penalty, c) },
			})
		}
	}
	return out
}

// BoostingCandidates expands the tree-ensemble grid in learning rate,
// depth, tree count order.
func BoostingCandidates(grid config.BoostingGrid) []Candidate {
	var out []Candidate
	for _, lr := range grid.LearningRates {
		for _, depth := range grid.MaxDepths {
			for _, n := range grid.NEstimators {
				lr, depth, n := lr, depth, n
				out = append(out, Candidate{
					Algorithm: AlgorithmBoosting,
					Params: fmt.Sprintf("learning_rate=%s max_depth=%d n_estimators=%d",
						strconv.FormatFloat(lr, 'g', -1, 64), depth, n),
					New: func() Classifier { return NewGradientBoosting(n, lr, depth) },
				})
			}
		}
	}
	return out
}

// SearchResult is the outcome of a grid search.
type SearchResult struct {
	Best      Candidate
	BestScore float64
	// MeanScores holds the mean fold accuracy of every candidate in grid
	// order.
	MeanScores []float64
}

// GridSearch scores every candidate with stratified k-fold accuracy and
// returns the one with the highest mean. Ties go to the earlier
// candidate. Folds are fitted concurrently; the first failure cancels the
// rest and is returned.
func GridSearch(ctx context.Context, candidates []Candidate, x [][]float64, y []int, k int) (*SearchResult, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("grid search: no candidates")
	}
	folds, err := StratifiedKFolds(y, k)
	if err != nil {
		return nil, err
	}

	scores := make([][]float64, len(candidates))
	for c := range scores {
		scores[c] = make([]float64, len(folds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c := range candidates {
		for f := range folds {
			c, f := c, f
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				trainX, trainY := subset(x, y, folds[f].Train)
				validX, validY := subset(x, y, folds[f].Valid)

				m := candidates[c].New()
				if err := m.Fit(trainX, trainY); err != nil {
					return fmt.Errorf("%s fold %d: %w", candidates[c].Params, f, err)
				}
				pred, err := m.Predict(validX)
				if err != nil {
					return fmt.Errorf("%s fold %d: %w", candidates[c].Params, f, err)
				}
				scores[c][f] = Accuracy(validY, pred)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &SearchResult{MeanScores: make([]float64, len(candidates))}
	best := -1
	for c, fs := range scores {
		sum := 0.0
		for _, s := range fs {
			sum += s
		}
		res.MeanScores[c] = sum / float64(len(fs))
		if best < 0 || res.MeanScores[c] > res.MeanScores[best] {
			best = c
		}
	}
	res.Best = candidates[best]
	res.BestScore = res.MeanScores[best]
	return res, nil
}
