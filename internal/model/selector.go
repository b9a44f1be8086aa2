package model

import (
	"context"
	"log/slog"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/runger/claimguard/internal/applog"
	"github.com/runger/claimguard/internal/config"
)

// Metric names reported by Score.
const (
	MetricAccuracy = "accuracy"
	MetricAUC      = "roc_auc"
)

// Accuracy returns the share of matching labels.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// AUC returns the area under the ROC curve of scores against the binary
// labels.
func AUC(yTrue []int, scores []float64) float64 {
	y := append([]float64(nil), scores...)
	classes := make([]bool, len(yTrue))
	for i, c := range yTrue {
		classes[i] = c == 1
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Score rates test predictions. AUC is undefined when the test labels
// hold a single class, so accuracy is used then.
func Score(yTrue, yPred []int) (float64, string) {
	if distinctClasses(yTrue) < 2 {
		return Accuracy(yTrue, yPred), MetricAccuracy
	}
	scores := make([]float64, len(yPred))
	for i, p := range yPred {
		scores[i] = float64(p)
	}
	return AUC(yTrue, scores), MetricAUC
}

func distinctClasses(y []int) int {
	seen := make(map[int]bool)
	for _, c := range y {
		seen[c] = true
	}
	return len(seen)
}

// Selection describes the outcome of SelectBest for reporting.
type Selection struct {
	Algorithm     string
	Params        string
	Metric        string
	LogisticScore float64
	BoostingScore float64
}

// Selector picks between the linear and the boosted classifier.
type Selector struct {
	Logistic []Candidate
	Boosting []Candidate
	Folds    int

	logger *slog.Logger
}

// NewSelector returns a selector for the configured grids.
func NewSelector(cfg config.TrainingConfig, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		Logistic: LogisticCandidates(cfg.Logistic),
		Boosting: BoostingCandidates(cfg.Boosting),
		Folds:    cfg.Folds,
		logger:   logger.With(applog.Topic(applog.TopicTraining)),
	}
}

// SelectBest tunes both algorithms on the training split, refits each
// with its best parameters, and scores them on the test split. The
// boosted model wins only with a strictly higher score.
func (s *Selector) SelectBest(ctx context.Context, trainX [][]float64, trainY []int, testX [][]float64, testY []int) (string, Classifier, error) {
	sel, m, err := s.Select(ctx, trainX, trainY, testX, testY)
	if err != nil {
		return "", nil, err
	}
	return sel.Algorithm, m, nil
}

// Select is SelectBest with the full scoring detail.
func (s *Selector) Select(ctx context.Context, trainX [][]float64, trainY []int, testX [][]float64, testY []int) (*Selection, Classifier, error) {
	linear, linearParams, linearScore, metric, err := s.tune(ctx, AlgorithmLogistic, s.Logistic, trainX, trainY, testX, testY)
	if err != nil {
		return nil, nil, err
	}
	boosted, boostedParams, boostedScore, _, err := s.tune(ctx, AlgorithmBoosting, s.Boosting, trainX, trainY, testX, testY)
	if err != nil {
		return nil, nil, err
	}

	sel := &Selection{
		Algorithm:     AlgorithmLogistic,
		Params:        linearParams,
		Metric:        metric,
		LogisticScore: linearScore,
		BoostingScore: boostedScore,
	}
	best := linear
	if linearScore < boostedScore {
		sel.Algorithm, sel.Params = AlgorithmBoosting, boostedParams
		best = boosted
	}

	s.logger.Info("model selected",
		"algorithm", sel.Algorithm,
		"params", sel.Params,
		"metric", metric,
		"logistic_score", linearScore,
		"boosting_score", boostedScore,
	)
	return sel, best, nil
}

func (s *Selector) tune(ctx context.Context, algorithm string, grid []Candidate, trainX [][]float64, trainY []int, testX [][]float64, testY []int) (Classifier, string, float64, string, error) {
	res, err := GridSearch(ctx, grid, trainX, trainY, s.Folds)
	if err != nil {
		return nil, "", 0, "", &TrainingError{Algorithm: algorithm, Stage: "grid search", Err: err}
	}
	s.logger.Debug("grid search finished", "algorithm", algorithm, "params", res.Best.Params, "cv_accuracy", res.BestScore)

	m := res.Best.New()
	if err := m.Fit(trainX, trainY); err != nil {
		return nil, "", 0, "", &TrainingError{Algorithm: algorithm, Stage: "refit", Err: err}
	}
	pred, err := m.Predict(testX)
	if err != nil {
		return nil, "", 0, "", &TrainingError{Algorithm: algorithm, Stage: "scoring", Err: err}
	}
	score, metric := Score(testY, pred)
	return m, res.Best.Params, score, metric, nil
}
