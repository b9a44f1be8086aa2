package model

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/runger/claimguard/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// separable returns two classes split on the first feature with a noise
// feature alongside.
func separable(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		c := i % 2
		center := -2.0
		if c == 1 {
			center = 2.0
		}
		x[i] = []float64{center + rng.NormFloat64()*0.5, rng.NormFloat64()}
		y[i] = c
	}
	return x, y
}

// xor returns a pattern a linear model cannot separate.
func xor(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		a, b := rng.Float64()*2-1, rng.Float64()*2-1
		x[i] = []float64{a, b}
		if (a > 0) != (b > 0) {
			y[i] = 1
		}
	}
	return x, y
}

func smallGrid() config.TrainingConfig {
	return config.TrainingConfig{
		Folds:    3,
		Logistic: config.LogisticGrid{Penalties: []string{"l1", "l2"}, C: []float64{0.1, 1}},
		Boosting: config.BoostingGrid{NEstimators: []int{20}, LearningRates: []float64{0.3}, MaxDepths: []int{3}},
	}
}

func TestLogisticRegression_Separable(t *testing.T) {
	for _, penalty := range []string{PenaltyL1, PenaltyL2} {
		t.Run(penalty, func(t *testing.T) {
			x, y := separable(80, 1)
			m := NewLogisticRegression(penalty, 1)
			require.NoError(t, m.Fit(x, y))

			pred, err := m.Predict(x)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, Accuracy(y, pred), 0.95)
			assert.Greater(t, m.W[0], 0.0)
		})
	}
}

func TestLogisticRegression_RefitIsStable(t *testing.T) {
	x, y := separable(60, 3)
	m := NewLogisticRegression(PenaltyL2, 1)
	require.NoError(t, m.Fit(x, y))
	first := append([]float64(nil), m.W...)
	bias := m.B

	require.NoError(t, m.Fit(x, y))
	assert.Equal(t, first, m.W)
	assert.Equal(t, bias, m.B)
	for _, w := range m.W {
		assert.False(t, math.IsNaN(w) || math.IsInf(w, 0))
	}
}

func TestLogisticRegression_L1Sparsity(t *testing.T) {
	x, y := separable(80, 2)
	m := NewLogisticRegression(PenaltyL1, 0.05)
	require.NoError(t, m.Fit(x, y))

	assert.Equal(t, 0.0, m.W[1], "strong l1 zeroes the noise feature")
	assert.NotEqual(t, 0.0, m.W[0])
}

func TestLogisticRegression_Errors(t *testing.T) {
	x, y := separable(10, 1)

	assert.Error(t, NewLogisticRegression("elasticnet", 1).Fit(x, y))
	assert.Error(t, NewLogisticRegression(PenaltyL2, 0).Fit(x, y))
	assert.Error(t, NewLogisticRegression(PenaltyL2, 1).Fit(x, y[:5]))
	assert.Error(t, NewLogisticRegression(PenaltyL2, 1).Fit(x, append(y[:9:9], 2)))

	_, err := NewLogisticRegression(PenaltyL2, 1).Predict(x)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestGradientBoosting_LearnsXOR(t *testing.T) {
	x, y := xor(200, 3)

	boosted := NewGradientBoosting(50, 0.3, 3)
	require.NoError(t, boosted.Fit(x, y))
	pred, err := boosted.Predict(x)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, Accuracy(y, pred), 0.9)

	linear := NewLogisticRegression(PenaltyL2, 1)
	require.NoError(t, linear.Fit(x, y))
	pred, err = linear.Predict(x)
	require.NoError(t, err)
	assert.Less(t, Accuracy(y, pred), 0.75)
}

func TestGradientBoosting_Deterministic(t *testing.T) {
	x, y := xor(60, 4)
	a := NewGradientBoosting(10, 0.1, 4)
	b := NewGradientBoosting(10, 0.1, 4)
	require.NoError(t, a.Fit(x, y))
	require.NoError(t, b.Fit(x, y))
	assert.Equal(t, a.Trees, b.Trees)
}

func TestGradientBoosting_Errors(t *testing.T) {
	x, y := xor(10, 1)
	assert.Error(t, NewGradientBoosting(0, 0.1, 3).Fit(x, y))
	assert.Error(t, NewGradientBoosting(10, 0, 3).Fit(x, y))

	_, err := NewGradientBoosting(10, 0.1, 3).PredictProba(x)
	assert.ErrorIs(t, err, ErrNotFitted)

	m := NewGradientBoosting(2, 0.1, 2)
	require.NoError(t, m.Fit(x, y))
	_, err = m.Predict([][]float64{{1}})
	assert.Error(t, err)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	x, y := xor(60, 5)
	for _, m := range []Classifier{NewLogisticRegression(PenaltyL2, 1), NewGradientBoosting(10, 0.3, 3)} {
		t.Run(m.Name(), func(t *testing.T) {
			require.NoError(t, m.Fit(x, y))
			want, err := m.PredictProba(x)
			require.NoError(t, err)

			data, err := Encode(m)
			require.NoError(t, err)
			back, err := Decode(data)
			require.NoError(t, err)

			assert.Equal(t, m.Name(), back.Name())
			got, err := back.PredictProba(x)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := Decode([]byte("garbage"))
	assert.Error(t, err)
}

func TestTrainTestSplit(t *testing.T) {
	x, y := separable(30, 1)

	trainX, testX, trainY, testY, err := TrainTestSplit(x, y, 1.0/3, 355)
	require.NoError(t, err)
	assert.Len(t, testX, 10)
	assert.Len(t, trainX, 20)
	assert.Len(t, testY, 10)
	assert.Len(t, trainY, 20)

	_, testX2, _, _, err := TrainTestSplit(x, y, 1.0/3, 355)
	require.NoError(t, err)
	assert.Equal(t, testX, testX2)

	_, _, _, _, err = TrainTestSplit(x, y, 0, 1)
	assert.Error(t, err)
	_, _, _, _, err = TrainTestSplit(x[:1], y[:1], 0.5, 1)
	assert.Error(t, err)
}

func TestStratifiedKFolds(t *testing.T) {
	y := []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 0}

	folds, err := StratifiedKFolds(y, 3)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	seen := map[int]int{}
	for _, f := range folds {
		assert.Len(t, f.Train, len(y)-len(f.Valid))
		ones := 0
		for _, i := range f.Valid {
			seen[i]++
			ones += y[i]
		}
		assert.Equal(t, 1, ones, "each fold holds one positive")
	}
	assert.Len(t, seen, len(y), "every row is validated exactly once")

	_, err = StratifiedKFolds(y, 1)
	assert.Error(t, err)
	_, err = StratifiedKFolds(y[:2], 3)
	assert.Error(t, err)
}

func TestCandidates_Order(t *testing.T) {
	cfg := config.DefaultConfig().Training

	linear := LogisticCandidates(cfg.Logistic)
	require.Len(t, linear, 8)
	assert.Equal(t, "C=0.01 penalty=l1", linear[0].Params)
	assert.Equal(t, "C=0.01 penalty=l2", linear[1].Params)
	assert.Equal(t, "C=10 penalty=l2", linear[7].Params)

	boosted := BoostingCandidates(cfg.Boosting)
	require.Len(t, boosted, 8)
	assert.Equal(t, "learning_rate=0.1 max_depth=8 n_estimators=100", boosted[0].Params)
	assert.Equal(t, "learning_rate=0.1 max_depth=8 n_estimators=130", boosted[1].Params)
	assert.Equal(t, AlgorithmBoosting, boosted[0].New().Name())
}

type fixedClassifier struct {
	label int
	err   error
}

func (f *fixedClassifier) Name() string                 { return "Fixed" }
func (f *fixedClassifier) Fit([][]float64, []int) error { return f.err }
func (f *fixedClassifier) Predict(x [][]float64) ([]int, error) {
	out := make([]int, len(x))
	for i := range out {
		out[i] = f.label
	}
	return out, nil
}
func (f *fixedClassifier) PredictProba(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = float64(f.label)
	}
	return out, nil
}

func fixed(label int, err error) Candidate {
	return Candidate{Algorithm: "Fixed", Params: "label=" + string(rune('0'+label)), New: func() Classifier {
		return &fixedClassifier{label: label, err: err}
	}}
}

func TestGridSearch_BestAndTies(t *testing.T) {
	y := []int{0, 0, 0, 0, 1, 1}
	x := make([][]float64, len(y))
	for i := range x {
		x[i] = []float64{float64(i)}
	}

	res, err := GridSearch(context.Background(), []Candidate{fixed(1, nil), fixed(0, nil)}, x, y, 2)
	require.NoError(t, err)
	assert.Equal(t, "label=0", res.Best.Params)
	assert.InDelta(t, 2.0/3, res.BestScore, 1e-12)

	res, err = GridSearch(context.Background(), []Candidate{fixed(0, nil), fixed(0, nil)}, x, y, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{res.BestScore, res.BestScore}, res.MeanScores)
}

func TestGridSearch_Errors(t *testing.T) {
	x, y := separable(20, 1)

	boom := errors.New("boom")
	_, err := GridSearch(context.Background(), []Candidate{fixed(0, nil), fixed(0, boom)}, x, y, 5)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = GridSearch(ctx, []Candidate{fixed(0, nil)}, x, y, 5)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = GridSearch(context.Background(), nil, x, y, 5)
	assert.Error(t, err)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		yTrue      []int
		yPred      []int
		wantMetric string
		want       float64
	}{
		{"single class uses accuracy", []int{1, 1, 1, 1}, []int{1, 0, 1, 1}, MetricAccuracy, 0.75},
		{"single negative class", []int{0, 0, 0}, []int{0, 0, 0}, MetricAccuracy, 1},
		{"two classes use auc", []int{0, 1, 1, 0}, []int{0, 1, 0, 0}, MetricAUC, 0.75},
		{"perfect auc", []int{0, 1, 0, 1}, []int{0, 1, 0, 1}, MetricAUC, 1},
		{"constant prediction auc", []int{0, 1, 0, 1}, []int{1, 1, 1, 1}, MetricAUC, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, metric := Score(tt.yTrue, tt.yPred)
			assert.Equal(t, tt.wantMetric, metric)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestSelectBest_LinearWinsTies(t *testing.T) {
	x, y := separable(60, 7)
	trainX, testX, trainY, testY, err := TrainTestSplit(x, y, 1.0/3, 355)
	require.NoError(t, err)

	s := NewSelector(smallGrid(), nil)
	name, m, err := s.SelectBest(context.Background(), trainX, trainY, testX, testY)
	require.NoError(t, err)

	// Both models separate the classes perfectly; equal scores keep the
	// linear model.
	assert.Equal(t, AlgorithmLogistic, name)
	assert.Equal(t, AlgorithmLogistic, m.Name())
}

func TestSelect_BoostingWinsOnXOR(t *testing.T) {
	x, y := xor(240, 9)
	trainX, testX, trainY, testY, err := TrainTestSplit(x, y, 1.0/3, 355)
	require.NoError(t, err)

	cfg := smallGrid()
	cfg.Boosting = config.BoostingGrid{NEstimators: []int{40}, LearningRates: []float64{0.3}, MaxDepths: []int{3}}
	sel, m, err := NewSelector(cfg, nil).Select(context.Background(), trainX, trainY, testX, testY)
	require.NoError(t, err)

	assert.Equal(t, AlgorithmBoosting, sel.Algorithm)
	assert.Equal(t, AlgorithmBoosting, m.Name())
	assert.Equal(t, MetricAUC, sel.Metric)
	assert.Greater(t, sel.BoostingScore, sel.LogisticScore)
}

func TestSelectBest_TrainingError(t *testing.T) {
	x, y := separable(30, 1)
	s := NewSelector(smallGrid(), nil)
	s.Logistic = []Candidate{fixed(0, errors.New("diverged"))}

	_, _, err := s.SelectBest(context.Background(), x[:20], y[:20], x[20:], y[20:])
	var te *TrainingError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "grid search", te.Stage)
	assert.True(t, IsTrainingError(err))
	assert.ErrorContains(t, err, "diverged")
}
