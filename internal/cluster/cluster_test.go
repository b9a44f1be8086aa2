package cluster

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/claimguard/internal/artifact"
)

// blobs returns three well separated groups of 2-D points.
func blobs(perGroup int) [][]float64 {
	rng := rand.New(rand.NewSource(1))
	centers := [][]float64{{0, 0}, {10, 10}, {-10, 10}}
	var x [][]float64
	for _, c := range centers {
		for i := 0; i < perGroup; i++ {
			x = append(x, []float64{c[0] + rng.NormFloat64()*0.5, c[1] + rng.NormFloat64()*0.5})
		}
	}
	return x
}

func newTestAssigner(t *testing.T) (*Assigner, *artifact.Store) {
	t.Helper()
	store, err := artifact.Open(filepath.Join(t.TempDir(), "models"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewAssigner(store, DefaultSeed, 0, nil), store
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	x := blobs(20)
	m := NewKMeans(3, DefaultSeed)
	require.NoError(t, m.Fit(x))

	labels, err := m.Predict(x)
	require.NoError(t, err)

	// Every group lands in one cluster and the groups differ.
	seen := map[int]bool{}
	for g := 0; g < 3; g++ {
		first := labels[g*20]
		for i := g * 20; i < (g+1)*20; i++ {
			assert.Equal(t, first, labels[i], "row %d", i)
		}
		seen[first] = true
	}
	assert.Len(t, seen, 3)
	assert.Greater(t, m.Inertia, 0.0)
}

func TestKMeans_CentroidsAreMembersMean(t *testing.T) {
	x := blobs(20)
	m := NewKMeans(3, DefaultSeed)
	require.NoError(t, m.Fit(x))
	require.Less(t, m.Iter, DefaultMaxIter)

	labels, err := m.Predict(x)
	require.NoError(t, err)

	for c, centroid := range m.Centroids {
		mean := make([]float64, len(centroid))
		n := 0
		for i, row := range x {
			if labels[i] != c {
				continue
			}
			for j, v := range row {
				mean[j] += v
			}
			n++
		}
		require.Positive(t, n)
		for j := range mean {
			assert.InDelta(t, mean[j]/float64(n), centroid[j], 1e-6, "cluster %d feature %d", c, j)
		}
	}
}

func TestKMeans_Deterministic(t *testing.T) {
	x := blobs(15)

	a := NewKMeans(4, DefaultSeed)
	b := NewKMeans(4, DefaultSeed)
	require.NoError(t, a.Fit(x))
	require.NoError(t, b.Fit(x))

	assert.Equal(t, a.Centroids, b.Centroids)
	assert.Equal(t, a.Inertia, b.Inertia)
}

func TestKMeans_Errors(t *testing.T) {
	assert.Error(t, NewKMeans(2, 1).Fit(nil))
	assert.Error(t, NewKMeans(0, 1).Fit([][]float64{{1}}))
	assert.Error(t, NewKMeans(3, 1).Fit([][]float64{{1}, {2}}))
	assert.Error(t, NewKMeans(1, 1).Fit([][]float64{{1, 2}, {3}}))

	_, err := NewKMeans(2, 1).Predict([][]float64{{1}})
	assert.Error(t, err)

	m := NewKMeans(1, 1)
	require.NoError(t, m.Fit([][]float64{{1, 2}, {3, 4}}))
	_, err = m.Predict([][]float64{{1}})
	assert.Error(t, err)
}

func TestKnee(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	y := []float64{100, 40, 20, 15, 12, 10, 9, 8, 7.5, 7}

	knee, err := Knee(x, y, 1)
	require.NoError(t, err)
	assert.Equal(t, 3.0, knee)
}

func TestKnee_NoKnee(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
	}{
		{"too few points", []float64{1, 2}, []float64{5, 1}},
		{"flat curve", []float64{1, 2, 3, 4}, []float64{5, 5, 5, 5}},
		{"straight line", []float64{1, 2, 3, 4, 5}, []float64{5, 4, 3, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Knee(tt.x, tt.y, 1)
			assert.ErrorIs(t, err, ErrNoKnee)
		})
	}

	_, err := Knee([]float64{1, 2, 3}, []float64{1, 2}, 1)
	assert.Error(t, err)
}

func TestOptimalClusterCount(t *testing.T) {
	a, _ := newTestAssigner(t)

	k, wcss, err := a.OptimalClusterCount(blobs(20), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, k)
	require.Len(t, wcss, 10)
	for i := 1; i < len(wcss); i++ {
		assert.LessOrEqual(t, wcss[i], wcss[i-1]+1e-9, "wcss must not increase at k=%d", i+1)
	}
}

func TestOptimalClusterCount_CapsAtRows(t *testing.T) {
	a, _ := newTestAssigner(t)
	x := [][]float64{{0}, {0.1}, {5}, {5.1}, {20}}

	_, wcss, _ := a.OptimalClusterCount(x, 10)
	assert.Len(t, wcss, len(x))
}

func TestFitPredict_DeterministicAndPersisted(t *testing.T) {
	a, store := newTestAssigner(t)
	x := blobs(10)

	first, err := a.FitPredict(x, 3)
	require.NoError(t, err)
	second, err := a.FitPredict(x, 3)
	require.NoError(t, err)
	assert.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, []int{10, 10, 10}, sortedSizes(first.Sizes()))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, PartitionerKey, metas[0].Key)
	assert.Equal(t, artifact.KindPartitioner, metas[0].Kind)

	// A fresh assigner on the same store predicts from the saved model.
	reloaded := NewAssigner(store, 999, 0, nil)
	got, err := reloaded.PredictAll(x)
	require.NoError(t, err)
	assert.Equal(t, first.Labels, got)

	id, err := reloaded.Predict(x[25])
	require.NoError(t, err)
	assert.Equal(t, first.Labels[25], id)
}

func TestPredict_WithoutPartitioner(t *testing.T) {
	a, _ := newTestAssigner(t)
	_, err := a.Predict([]float64{1, 2})
	assert.True(t, artifact.IsNotFound(err))
}

func TestWriteElbowChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preprocessing_data", ElbowChartFile)
	require.NoError(t, WriteElbowChart(path, []float64{100, 40, 20, 15, 12}, 3))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, WriteElbowChart(path, nil, 0))
}

func sortedSizes(sizes []int) []int {
	out := append([]int(nil), sizes...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
