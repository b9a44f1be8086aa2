package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/runger/claimguard/internal/applog"
	"github.com/runger/claimguard/internal/cluster"
	"github.com/runger/claimguard/internal/config"
	"github.com/runger/claimguard/internal/dataset"
	"github.com/runger/claimguard/internal/features"
)

// PredictionColumn is the header of the prediction output file.
const PredictionColumn = "Predictions"

// PredictionResult summarizes a prediction run.
type PredictionResult struct {
	RunID       string
	Intake      *IntakeSummary
	Rows        int
	Positive    int
	PerCluster  map[int]int
	Keys        map[int]string
	OutputFile  string
	Predictions []string
	EventLog    string
}

// Predictor runs the prediction flow.
type Predictor struct {
	opts Options

	// OutputFile overrides the default prediction output path.
	OutputFile string
}

// NewPredictor returns a predictor for opts.
func NewPredictor(opts Options) *Predictor {
	return &Predictor{opts: opts}
}

func (p *Predictor) outputFile() string {
	if p.OutputFile != "" {
		return p.OutputFile
	}
	return p.opts.Paths.PredictionOutputFile()
}

// Run validates the prediction batch, encodes it with the stored
// encoder, assigns every row to a cluster with the stored partitioner and
// appends one label per row, in input order, to the output file.
func (p *Predictor) Run(ctx context.Context) (res *PredictionResult, err error) {
	if err := p.opts.validate(); err != nil {
		return nil, err
	}
	r, err := startRun(ctx, config.ModePrediction, SchemaPath(config.ModePrediction, p.opts.Config, p.opts.Paths), p.opts)
	if err != nil {
		return nil, err
	}
	res = &PredictionResult{
		RunID:      r.id,
		OutputFile: p.outputFile(),
		PerCluster: make(map[int]int),
		Keys:       make(map[int]string),
		EventLog:   r.eventsPath(),
	}
	defer func() { r.finish(err, len(res.Keys)) }()

	frame, intake, err := r.intake(ctx)
	res.Intake = intake
	if err != nil {
		return res, err
	}

	cfg := p.opts.Config
	logger := r.logger.With(applog.Topic(applog.TopicPrediction))

	var x *dataset.Matrix
	err = r.stage(ctx, "encode features", func() error {
		pipe := features.NewPipeline(cfg.Features, r.logger)
		pipe.OptionalDrop = []string{cfg.Validation.IdentifierColumn, cfg.Features.LabelColumn}
		cleaned, err := pipe.Clean(frame)
		if err != nil {
			return err
		}

		var enc features.Encoder
		if _, err := r.artifacts.LoadValue(EncoderKey, &enc); err != nil {
			return err
		}
		x, err = enc.Transform(cleaned)
		return err
	})
	if err != nil {
		return res, err
	}

	var labels []int
	err = r.stage(ctx, "assign clusters", func() error {
		assigner := cluster.NewAssigner(r.artifacts, cfg.Clustering.Seed, cfg.Clustering.MaxIter, r.logger)
		var err error
		labels, err = assigner.PredictAll(x.X)
		return err
	})
	if err != nil {
		return res, err
	}

	out := make([]string, x.Len())
	err = r.stage(ctx, "predict", func() error {
		groups := make(map[int][]int)
		var order []int
		for i, c := range labels {
			if _, ok := groups[c]; !ok {
				order = append(order, c)
			}
			groups[c] = append(groups[c], i)
		}

		for _, c := range order {
			idx := groups[c]
			clf, scaler, key, err := loadClusterModel(r.artifacts, c)
			if err != nil {
				return err
			}
			scaled, err := scaler.Transform(x.Subset(idx))
			if err != nil {
				return fmt.Errorf("scale cluster %d: %w", c, err)
			}
			pred, err := clf.Predict(scaled.X)
			if err != nil {
				return fmt.Errorf("predict cluster %d with %s: %w", c, key, err)
			}
			for k, i := range idx {
				out[i] = cfg.Features.NegativeLabel
				if pred[k] == 1 {
					out[i] = cfg.Features.PositiveLabel
					res.Positive++
				}
			}
			res.PerCluster[c] = len(idx)
			res.Keys[c] = key
			logger.Info("cluster predicted", "cluster", c, "key", key, "rows", len(idx))
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	err = r.stage(ctx, "write predictions", func() error {
		if err := AppendPredictions(res.OutputFile, out); err != nil {
			return err
		}
		logger.Info("predictions written", "path", res.OutputFile, "rows", len(out), "positive", res.Positive)
		return nil
	})
	if err != nil {
		return res, err
	}

	res.Rows = len(out)
	res.Predictions = out
	return res, nil
}

// AppendPredictions appends one row per value to the CSV at path. The
// header is written only when the file is new or empty; earlier output
// is kept.
func AppendPredictions(path string, values []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: configured output path
	if err != nil {
		return fmt.Errorf("open prediction output: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	w := csv.NewWriter(f)
	if fi.Size() == 0 {
		if err := w.Write([]string{PredictionColumn}); err != nil {
			f.Close()
			return err
		}
	}
	for _, v := range values {
		if err := w.Write([]string{v}); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write prediction output: %w", err)
	}
	return f.Close()
}
