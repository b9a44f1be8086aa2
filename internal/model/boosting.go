package model

import (
	"fmt"
	"sort"
)

// GradientBoosting is a binary gradient-boosted tree ensemble on the
// log-loss. Trees are grown depth-first with second-order (Newton) gains
// and leaf weights, regularized by Lambda and MinChildWeight.
type GradientBoosting struct {
	NEstimators    int
	LearningRate   float64
	MaxDepth       int
	Lambda         float64
	MinChildWeight float64

	// BaseMargin is the starting log-odds of every row.
	BaseMargin float64
	Trees      []Tree
	Features   int
	Fitted     bool
}

// Tree is a regression tree stored as a flat node list; node 0 is the root.
type Tree struct {
	Nodes []TreeNode
}

// TreeNode is one split or leaf. Rows with x[Feature] < Threshold go Left.
type TreeNode struct {
	Leaf      bool
	Value     float64
	Feature   int
	Threshold float64
	Left      int
	Right     int
}

// NewGradientBoosting returns an unfitted ensemble.
func NewGradientBoosting(nEstimators int, learningRate float64, maxDepth int) *GradientBoosting {
	return &GradientBoosting{
		NEstimators:    nEstimators,
		LearningRate:   learningRate,
		MaxDepth:       maxDepth,
		Lambda:         1,
		MinChildWeight: 1,
	}
}

// Name implements Classifier.
func (m *GradientBoosting) Name() string { return AlgorithmBoosting }

// Fit implements Classifier.
func (m *GradientBoosting) Fit(x [][]float64, y []int) error {
	if err := checkXY(x, y); err != nil {
		return err
	}
	if m.NEstimators < 1 || m.MaxDepth < 1 || m.LearningRate <= 0 {
		return fmt.Errorf("gradient boosting: invalid parameters n_estimators=%d max_depth=%d learning_rate=%g",
			m.NEstimators, m.MaxDepth, m.LearningRate)
	}

	n, p := len(x), len(x[0])

	// Row indices ordered by each feature, computed once and partitioned
	// down the tree.
	sorted := make([][]int, p)
	for j := range sorted {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]][j] < x[idx[b]][j] })
		sorted[j] = idx
	}

	margin := make([]float64, n)
	for i := range margin {
		margin[i] = m.BaseMargin
	}
	g := &grower{
		x:        x,
		grad:     make([]float64, n),
		hess:     make([]float64, n),
		goLeft:   make([]bool, n),
		lambda:   m.Lambda,
		minChild: m.MinChildWeight,
		maxDepth: m.MaxDepth,
	}

	m.Trees = make([]Tree, 0, m.NEstimators)
	for t := 0; t < m.NEstimators; t++ {
		for i := range margin {
			prob := sigmoid(margin[i])
			g.grad[i] = prob - float64(y[i])
			g.hess[i] = prob * (1 - prob)
		}

		g.nodes = nil
		g.grow(sorted, 0)
		tree := Tree{Nodes: g.nodes}
		for i, row := range x {
			margin[i] += m.LearningRate * tree.predict(row)
		}
		m.Trees = append(m.Trees, tree)
	}

	m.Features = p
	m.Fitted = true
	return nil
}

// PredictProba implements Classifier.
func (m *GradientBoosting) PredictProba(x [][]float64) ([]float64, error) {
	if !m.Fitted {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != m.Features {
			return nil, fmt.Errorf("gradient boosting: row %d has %d features, model expects %d", i, len(row), m.Features)
		}
		margin := m.BaseMargin
		for _, t := range m.Trees {
			margin += m.LearningRate * t.predict(row)
		}
		out[i] = sigmoid(margin)
	}
	return out, nil
}

// Predict implements Classifier.
func (m *GradientBoosting) Predict(x [][]float64) ([]int, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return threshold(proba), nil
}

func (t Tree) predict(row []float64) float64 {
	i := 0
	for !t.Nodes[i].Leaf {
		n := t.Nodes[i]
		if row[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

type grower struct {
	x          [][]float64
	grad, hess []float64
	goLeft     []bool
	lambda     float64
	minChild   float64
	maxDepth   int
	nodes      []TreeNode
}

// grow appends the subtree for the rows in sorted and returns its root
// index. sorted holds the node's rows once per feature, each list
// ordered by that feature.
func (g *grower) grow(sorted [][]int, depth int) int {
	rows := sorted[0]
	var sumG, sumH float64
	for _, i := range rows {
		sumG += g.grad[i]
		sumH += g.hess[i]
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, TreeNode{Leaf: true, Value: -sumG / (sumH + g.lambda)})
	if depth >= g.maxDepth || len(rows) < 2 {
		return idx
	}

	parent := sumG * sumG / (sumH + g.lambda)
	bestGain, bestFeature, bestThreshold := 1e-12, -1, 0.0
	for j, list := range sorted {
		var gl, hl float64
		for k := 0; k < len(list)-1; k++ {
			i := list[k]
			gl += g.grad[i]
			hl += g.hess[i]

			v, next := g.x[i][j], g.x[list[k+1]][j]
			if v == next {
				continue
			}
			gr, hr := sumG-gl, sumH-hl
			if hl < g.minChild || hr < g.minChild {
				continue
			}
			gain := gl*gl/(hl+g.lambda) + gr*gr/(hr+g.lambda) - parent
			if gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, j, v+(next-v)/2
			}
		}
	}
	if bestFeature < 0 {
		return idx
	}

	for _, i := range rows {
		g.goLeft[i] = g.x[i][bestFeature] < bestThreshold
	}
	left := make([][]int, len(sorted))
	right := make([][]int, len(sorted))
	for j, list := range sorted {
		for _, i := range list {
			if g.goLeft[i] {
				left[j] = append(left[j], i)
			} else {
				right[j] = append(right[j], i)
			}
		}
	}

	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[idx] = TreeNode{Feature: bestFeature, Threshold: bestThreshold, Left: l, Right: r}
	return idx
}
