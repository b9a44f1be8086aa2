// Package cluster partitions the encoded claims into groups that get
// their own classifier.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Defaults used when a KMeans field is left zero.
const (
	DefaultSeed    int64 = 42
	DefaultMaxIter       = 300
	DefaultNInit         = 10
	tolerance            = 1e-4
)

// KMeans is a k-means partitioner. Exported fields are the whole fitted
// state so the model survives a gob round trip.
type KMeans struct {
	K         int
	MaxIter   int
	NInit     int
	Seed      int64
	Centroids [][]float64
	Inertia   float64
	Iter      int
}

// NewKMeans returns an unfitted partitioner with k clusters.
func NewKMeans(k int, seed int64) *KMeans {
	return &KMeans{K: k, MaxIter: DefaultMaxIter, NInit: DefaultNInit, Seed: seed}
}

// Fit runs NInit k-means++ initialisations followed by Lloyd iterations
// and keeps the run with the lowest inertia. All randomness comes from
// Seed, so identical input gives identical centroids.
func (m *KMeans) Fit(x [][]float64) error {
	if len(x) == 0 {
		return errors.New("kmeans: input data cannot be empty")
	}
	if m.K < 1 {
		return fmt.Errorf("kmeans: k must be positive, got %d", m.K)
	}
	if len(x) < m.K {
		return fmt.Errorf("kmeans: %d rows is fewer than k=%d", len(x), m.K)
	}
	dim := len(x[0])
	for i, row := range x {
		if len(row) != dim {
			return fmt.Errorf("kmeans: row %d has %d features, want %d", i, len(row), dim)
		}
	}

	maxIter, nInit := m.MaxIter, m.NInit
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}
	if nInit <= 0 {
		nInit = DefaultNInit
	}

	rng := rand.New(rand.NewSource(m.Seed))
	m.Inertia = math.Inf(1)
	for run := 0; run < nInit; run++ {
		centroids := initCenters(x, m.K, rng)
		inertia, iter := lloyd(x, centroids, maxIter)
		if inertia < m.Inertia {
			m.Centroids, m.Inertia, m.Iter = centroids, inertia, iter
		}
	}
	return nil
}

// Predict returns the index of the nearest centroid for every row.
func (m *KMeans) Predict(x [][]float64) ([]int, error) {
	if len(m.Centroids) == 0 {
		return nil, errors.New("kmeans: model is not fitted")
	}
	out := make([]int, len(x))
	for i, row := range x {
		if len(row) != len(m.Centroids[0]) {
			return nil, fmt.Errorf("kmeans: row %d has %d features, model expects %d", i, len(row), len(m.Centroids[0]))
		}
		out[i], _ = nearest(row, m.Centroids)
	}
	return out, nil
}

// initCenters picks k starting centroids with k-means++ seeding.
func initCenters(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), x[rng.Intn(len(x))]...))

	dist := make([]float64, len(x))
	for len(centroids) < k {
		total := 0.0
		for i, row := range x {
			_, dist[i] = nearest(row, centroids)
			total += dist[i]
		}

		pick := 0
		if total > 0 {
			pick = len(x) - 1
			r := rng.Float64() * total
			for i, d := range dist {
				r -= d
				if r <= 0 {
					pick = i
					break
				}
			}
		} else {
			pick = rng.Intn(len(x))
		}
		centroids = append(centroids, append([]float64(nil), x[pick]...))
	}
	return centroids
}

// lloyd refines centroids in place and returns the final inertia and the
// number of iterations run.
func lloyd(x [][]float64, centroids [][]float64, maxIter int) (float64, int) {
	k, dim := len(centroids), len(centroids[0])
	assign := make([]int, len(x))
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	counts := make([]int, k)

	iter := 0
	for iter < maxIter {
		iter++
		for i, row := range x {
			assign[i], _ = nearest(row, centroids)
		}

		for c := range sums {
			clear(sums[c])
			counts[c] = 0
		}
		for i, row := range x {
			floats.Add(sums[assign[i]], row)
			counts[assign[i]]++
		}

		shift := 0.0
		for c := range centroids {
			if counts[c] == 0 {
				// Empty clusters keep their previous centroid.
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(sums[c], centroids[c])
			copy(centroids[c], sums[c])
		}
		if shift <= tolerance {
			break
		}
	}

	inertia := 0.0
	for _, row := range x {
		_, d := nearest(row, centroids)
		inertia += d
	}
	return inertia, iter
}

func nearest(row []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(row, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
