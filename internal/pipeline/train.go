package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/runger/claimguard/internal/applog"
	"github.com/runger/claimguard/internal/artifact"
	"github.com/runger/claimguard/internal/cluster"
	"github.com/runger/claimguard/internal/config"
	"github.com/runger/claimguard/internal/dataset"
	"github.com/runger/claimguard/internal/features"
	"github.com/runger/claimguard/internal/model"
)

// NullReportFile is the per-column missing-value report written during
// preprocessing.
const NullReportFile = "null_values.csv"

// ClusterResult is the model chosen for one cluster.
type ClusterResult struct {
	Cluster   int
	Rows      int
	Key       string
	Selection model.Selection
}

// TrainingResult summarizes a training run.
type TrainingResult struct {
	RunID      string
	Intake     *IntakeSummary
	K          int
	WCSS       []float64
	ElbowChart string
	Clusters   []ClusterResult
	// EmptyClusters lists clusters that received no rows and therefore
	// have no classifier. Prediction rows assigned to them fail.
	EmptyClusters []int
	EventLog      string
}

// Trainer runs the training flow.
type Trainer struct {
	opts Options
}

// NewTrainer returns a trainer for opts.
func NewTrainer(opts Options) *Trainer {
	return &Trainer{opts: opts}
}

// Run validates the training batch, rebuilds the feature set, chooses
// the cluster count, and trains and stores one classifier per cluster.
// Stored artifacts are replaced only once the batch has been read.
func (t *Trainer) Run(ctx context.Context) (res *TrainingResult, err error) {
	if err := t.opts.validate(); err != nil {
		return nil, err
	}
	r, err := startRun(ctx, config.ModeTraining, SchemaPath(config.ModeTraining, t.opts.Config, t.opts.Paths), t.opts)
	if err != nil {
		return nil, err
	}
	res = &TrainingResult{RunID: r.id, EventLog: r.eventsPath()}
	defer func() { r.finish(err, res.K) }()

	frame, intake, err := r.intake(ctx)
	res.Intake = intake
	if err != nil {
		return res, err
	}

	cfg := t.opts.Config
	var cleaned *dataset.Frame
	err = r.stage(ctx, "preprocess", func() error {
		p := features.NewPipeline(cfg.Features, r.logger)
		p.OptionalDrop = []string{cfg.Validation.IdentifierColumn}
		p.NullReport = filepath.Join(t.opts.Paths.PreprocessingDir(), NullReportFile)
		var err error
		cleaned, err = p.Clean(frame)
		return err
	})
	if err != nil {
		return res, err
	}

	var x *dataset.Matrix
	var y []int
	err = r.stage(ctx, "encode features", func() error {
		if err := r.artifacts.Reset(); err != nil {
			return err
		}
		enc := features.NewEncoderFromConfig(cfg.Features)
		if err := enc.Fit(cleaned); err != nil {
			return err
		}
		m, err := enc.Transform(cleaned)
		if err != nil {
			return err
		}
		x, y, err = features.SeparateLabel(m, cfg.Features.LabelColumn)
		if err != nil {
			return err
		}
		r.logger.Info("features encoded", applog.Topic(applog.TopicPreprocessing), "rows", x.Len(), "features", len(x.Columns))
		return r.artifacts.SaveValue(EncoderKey, artifact.KindEncoder, "Encoder", artifact.NoCluster, enc)
	})
	if err != nil {
		return res, err
	}

	assigner := cluster.NewAssigner(r.artifacts, cfg.Clustering.Seed, cfg.Clustering.MaxIter, r.logger)
	var assignment cluster.Assignment
	err = r.stage(ctx, "cluster", func() error {
		k, wcss, err := assigner.OptimalClusterCount(x.X, cfg.Clustering.MaxClusters)
		res.WCSS = wcss
		if cfg.Clustering.ElbowChart && len(wcss) > 0 {
			path := filepath.Join(t.opts.Paths.PreprocessingDir(), cluster.ElbowChartFile)
			if cerr := cluster.WriteElbowChart(path, wcss, k); cerr != nil {
				r.logger.Warn("failed to write elbow chart", applog.Topic(applog.TopicClustering), "error", cerr)
			} else {
				res.ElbowChart = path
			}
		}
		if err != nil {
			return err
		}
		assignment, err = assigner.FitPredict(x.X, k)
		if err != nil {
			return err
		}
		res.K = k
		return nil
	})
	if err != nil {
		return res, err
	}

	selector := model.NewSelector(cfg.Training, r.logger)
	groups := groupRows(assignment.Labels, assignment.K)
	if res.EmptyClusters = emptyGroups(groups); len(res.EmptyClusters) > 0 {
		r.logger.Warn("clusters have no rows; no classifier trained for them",
			applog.Topic(applog.TopicTraining), "clusters", res.EmptyClusters, "k", assignment.K)
	}
	for c, idx := range groups {
		if len(idx) == 0 {
			continue
		}
		var cr *ClusterResult
		err = r.stage(ctx, fmt.Sprintf("train cluster %d", c), func() error {
			var err error
			cr, err = t.trainCluster(ctx, r, selector, c, x.Subset(idx), dataset.SubsetLabels(y, idx))
			return err
		})
		if err != nil {
			return res, err
		}
		res.Clusters = append(res.Clusters, *cr)
	}

	return res, nil
}

// trainCluster splits, scales and balances one cluster's rows, selects
// the better classifier and stores it with its scaler.
func (t *Trainer) trainCluster(ctx context.Context, r *run, selector *model.Selector, c int, m *dataset.Matrix, y []int) (*ClusterResult, error) {
	cfg := t.opts.Config
	logger := r.logger.With(applog.Topic(applog.TopicTraining), "cluster", c)

	trainX, testX, trainY, testY, err := model.TrainTestSplit(m.X, y, cfg.Training.TestFraction, cfg.Training.SplitSeed)
	if err != nil {
		return nil, &model.TrainingError{Algorithm: fmt.Sprintf("cluster %d", c), Stage: "train/test split", Err: err}
	}

	scaler := features.NewScaler(features.PresentColumns(m, cfg.Features.NumericColumns))
	train, err := scaler.FitTransform(&dataset.Matrix{Columns: m.Columns, X: trainX})
	if err != nil {
		return nil, err
	}
	test, err := scaler.Transform(&dataset.Matrix{Columns: m.Columns, X: testX})
	if err != nil {
		return nil, err
	}

	fitX, fitY := train.X, trainY
	if cfg.Features.BalanceClasses {
		fitX, fitY = features.Balance(fitX, fitY, cfg.Training.SplitSeed)
		logger.Debug("classes balanced", "before", len(trainY), "after", len(fitY))
	}

	sel, clf, err := selector.Select(ctx, fitX, fitY, test.X, testY)
	if err != nil {
		return nil, err
	}

	key, err := saveClusterModel(r.artifacts, c, sel, clf, scaler)
	if err != nil {
		return nil, err
	}
	logger.Info("cluster model saved", "key", key, "rows", len(y))

	score := sel.LogisticScore
	if sel.Algorithm == model.AlgorithmBoosting {
		score = sel.BoostingScore
	}
	data := ClusterData{
		RunID:     r.id,
		Cluster:   c,
		Rows:      len(y),
		Key:       key,
		Algorithm: sel.Algorithm,
		Params:    sel.Params,
		Metric:    sel.Metric,
		Score:     score,
	}
	r.events.Write(EventCluster, data)
	r.opts.Display.ClusterModel(data)

	return &ClusterResult{Cluster: c, Rows: len(y), Key: key, Selection: *sel}, nil
}

// groupRows returns the row indices of every cluster id in [0, k).
func groupRows(labels []int, k int) [][]int {
	groups := make([][]int, k)
	for i, c := range labels {
		if c >= 0 && c < k {
			groups[c] = append(groups[c], i)
		}
	}
	return groups
}

func emptyGroups(groups [][]int) []int {
	var empty []int
	for c, idx := range groups {
		if len(idx) == 0 {
			empty = append(empty, c)
		}
	}
	return empty
}
