package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ElbowChartFile is the chart's file name inside the preprocessing directory.
const ElbowChartFile = "K-Means_Elbow.png"

// WriteElbowChart draws the within-cluster sum of squares against the
// cluster count, k = 1..len(wcss), and saves it to path. The image format
// follows the file extension.
func WriteElbowChart(path string, wcss []float64, knee int) error {
	if len(wcss) == 0 {
		return fmt.Errorf("elbow chart: no points")
	}

	p := plot.New()
	p.Title.Text = "The Elbow Method"
	p.X.Label.Text = "Number of clusters"
	p.Y.Label.Text = "WCSS"

	pts := make(plotter.XYs, len(wcss))
	for i, v := range wcss {
		pts[i] = plotter.XY{X: float64(i + 1), Y: v}
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("elbow chart: %w", err)
	}
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line, points)

	if knee >= 1 && knee <= len(wcss) {
		mark, err := plotter.NewScatter(plotter.XYs{{X: float64(knee), Y: wcss[knee-1]}})
		if err != nil {
			return fmt.Errorf("elbow chart: %w", err)
		}
		mark.Radius = vg.Points(5)
		p.Add(mark)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("elbow chart: %w", err)
	}
	return nil
}
