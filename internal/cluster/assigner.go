package cluster

import (
	"fmt"
	"log/slog"

	"github.com/runger/claimguard/internal/applog"
	"github.com/runger/claimguard/internal/artifact"
)

// PartitionerKey is the artifact key of the fitted partitioner.
const PartitionerKey = "KMeans"

// Store is the subset of the artifact store the assigner needs.
type Store interface {
	SaveValue(key, kind, algorithm string, clusterID int, v any) error
	LoadValue(key string, v any) (*artifact.Artifact, error)
}

// Assignment is the result of fitting the partitioner.
type Assignment struct {
	K       int
	Labels  []int
	Inertia float64
}

// Sizes returns the number of rows in each cluster.
func (a Assignment) Sizes() []int {
	sizes := make([]int, a.K)
	for _, c := range a.Labels {
		sizes[c]++
	}
	return sizes
}

// Assigner chooses the cluster count, fits the partitioner, and assigns
// rows to clusters with the persisted model.
type Assigner struct {
	Store   Store
	Seed    int64
	MaxIter int

	logger *slog.Logger
}

// NewAssigner returns an assigner backed by store.
func NewAssigner(store Store, seed int64, maxIter int, logger *slog.Logger) *Assigner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assigner{
		Store:   store,
		Seed:    seed,
		MaxIter: maxIter,
		logger:  logger.With(applog.Topic(applog.TopicClustering)),
	}
}

func (a *Assigner) newKMeans(k int) *KMeans {
	m := NewKMeans(k, a.Seed)
	if a.MaxIter > 0 {
		m.MaxIter = a.MaxIter
	}
	return m
}

// OptimalClusterCount fits k = 1..min(kMax, rows) and returns the knee of
// the within-cluster sum of squares curve together with the curve itself.
func (a *Assigner) OptimalClusterCount(x [][]float64, kMax int) (int, []float64, error) {
	if kMax > len(x) {
		kMax = len(x)
	}
	if kMax < 1 {
		return 0, nil, fmt.Errorf("optimal cluster count: no rows")
	}

	wcss := make([]float64, kMax)
	ks := make([]float64, kMax)
	for k := 1; k <= kMax; k++ {
		m := a.newKMeans(k)
		if err := m.Fit(x); err != nil {
			return 0, nil, fmt.Errorf("fit k=%d: %w", k, err)
		}
		wcss[k-1] = m.Inertia
		ks[k-1] = float64(k)
	}

	knee, err := Knee(ks, wcss, 1)
	if err != nil {
		a.logger.Error("elbow detection failed", "wcss", wcss, "error", err)
		return 0, wcss, err
	}
	a.logger.Info("optimal cluster count", "k", int(knee))
	return int(knee), wcss, nil
}

// FitPredict fits a fresh partitioner with k clusters, persists it under
// PartitionerKey, and returns each row's cluster.
func (a *Assigner) FitPredict(x [][]float64, k int) (Assignment, error) {
	m := a.newKMeans(k)
	if err := m.Fit(x); err != nil {
		return Assignment{}, err
	}
	labels, err := m.Predict(x)
	if err != nil {
		return Assignment{}, err
	}

	if err := a.Store.SaveValue(PartitionerKey, artifact.KindPartitioner, "KMeans", artifact.NoCluster, m); err != nil {
		return Assignment{}, fmt.Errorf("save partitioner: %w", err)
	}

	out := Assignment{K: k, Labels: labels, Inertia: m.Inertia}
	a.logger.Info("clusters assigned", "k", k, "sizes", out.Sizes(), "inertia", m.Inertia)
	return out, nil
}

// Load returns the persisted partitioner.
func (a *Assigner) Load() (*KMeans, error) {
	var m KMeans
	if _, err := a.Store.LoadValue(PartitionerKey, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Predict assigns one record with the persisted partitioner.
func (a *Assigner) Predict(record []float64) (int, error) {
	ids, err := a.PredictAll([][]float64{record})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// PredictAll assigns every row with the persisted partitioner, loading
// it once.
func (a *Assigner) PredictAll(x [][]float64) ([]int, error) {
	m, err := a.Load()
	if err != nil {
		return nil, err
	}
	return m.Predict(x)
}
