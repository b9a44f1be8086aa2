// Package model trains the per-cluster classifiers and picks the better
// of a linear model and a boosted tree ensemble.
package model

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
)

// Algorithm names. They also prefix the artifact key of a cluster's
// classifier.
const (
	AlgorithmLogistic = "LogisticRegression"
	AlgorithmBoosting = "GradientBoosting"
)

// ErrNotFitted is returned when a classifier predicts before Fit.
var ErrNotFitted = errors.New("model: classifier is not fitted")

// Classifier is a binary classifier over dense features. Labels are 0
// and 1.
type Classifier interface {
	Name() string
	Fit(x [][]float64, y []int) error
	// PredictProba returns the probability of class 1 for every row.
	PredictProba(x [][]float64) ([]float64, error)
	Predict(x [][]float64) ([]int, error)
}

// TrainingError wraps any failure while fitting or scoring a candidate.
// Model selection stops at the first one; there is no fallback model.
type TrainingError struct {
	Algorithm string
	Stage     string
	Err       error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training %s failed during %s: %v", e.Algorithm, e.Stage, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// IsTrainingError reports whether err is a TrainingError.
func IsTrainingError(err error) bool {
	var te *TrainingError
	return errors.As(err, &te)
}

// envelope carries exactly one concrete classifier through gob.
type envelope struct {
	Algorithm string
	Logistic  *LogisticRegression
	Boosting  *GradientBoosting
}

// Encode serializes a fitted classifier.
func Encode(c Classifier) ([]byte, error) {
	env := envelope{Algorithm: c.Name()}
	switch m := c.(type) {
	case *LogisticRegression:
		env.Logistic = m
	case *GradientBoosting:
		env.Boosting = m
	default:
		return nil, fmt.Errorf("encode classifier: unsupported type %T", c)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&env); err != nil {
		return nil, fmt.Errorf("encode classifier: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode restores a classifier written by Encode.
func Decode(data []byte) (Classifier, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	switch {
	case env.Algorithm == AlgorithmLogistic && env.Logistic != nil:
		return env.Logistic, nil
	case env.Algorithm == AlgorithmBoosting && env.Boosting != nil:
		return env.Boosting, nil
	}
	return nil, fmt.Errorf("decode classifier: unknown algorithm %q", env.Algorithm)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func threshold(proba []float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= 0.5 {
			out[i] = 1
		}
	}
	return out
}

func checkXY(x [][]float64, y []int) error {
	if len(x) == 0 {
		return errors.New("no training rows")
	}
	if len(x) != len(y) {
		return fmt.Errorf("%d rows but %d labels", len(x), len(y))
	}
	p := len(x[0])
	for i, row := range x {
		if len(row) != p {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), p)
		}
	}
	for i, c := range y {
		if c != 0 && c != 1 {
			return fmt.Errorf("label %d at row %d is not binary", c, i)
		}
	}
	return nil
}
