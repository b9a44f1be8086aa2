package features

import (
	"log/slog"

	"github.com/runger/claimguard/internal/applog"
	"github.com/runger/claimguard/internal/config"
	"github.com/runger/claimguard/internal/dataset"
)

// Pipeline runs the frame-level cleaning shared by training and
// prediction: trim, drop, replace markers, and impute.
type Pipeline struct {
	cfg config.FeaturesConfig

	// OptionalDrop names columns removed only when present, such as the
	// identifier column added by validation.
	OptionalDrop []string

	// NullReport is where the per-column missing counts are written when
	// any value is missing. Empty disables the report.
	NullReport string

	logger *slog.Logger
}

// NewPipeline returns a cleaning pipeline for cfg.
func NewPipeline(cfg config.FeaturesConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger.With(applog.Topic(applog.TopicPreprocessing))}
}

// Clean returns the cleaned copy of f.
func (p *Pipeline) Clean(f *dataset.Frame) (*dataset.Frame, error) {
	out := TrimSpaces(f)

	drop := append([]string(nil), p.cfg.DropColumns...)
	for _, name := range p.OptionalDrop {
		if out.Index(name) >= 0 {
			drop = append(drop, name)
		}
	}
	out, err := DropColumns(out, drop)
	if err != nil {
		return nil, err
	}
	p.logger.Info("columns dropped", "count", len(drop), "remaining", len(out.Columns))

	out = ReplaceMarkers(out, p.cfg.MissingMarkers)

	present, cols := IsNullPresent(out)
	if !present {
		p.logger.Info("no missing values")
		return out, nil
	}

	p.logger.Info("missing values found", "columns", cols)
	if p.NullReport != "" {
		if err := WriteNullReport(p.NullReport, out); err != nil {
			p.logger.Warn("failed to write null value report", "path", p.NullReport, "error", err)
		}
	}

	out, err = Impute(out, cols)
	if err != nil {
		return nil, err
	}
	p.logger.Info("missing values imputed", "columns", len(cols))
	return out, nil
}

// NewEncoderFromConfig returns an unfitted encoder for cfg.
func NewEncoderFromConfig(cfg config.FeaturesConfig) *Encoder {
	return NewEncoder(cfg.LabelColumn, cfg.LabelMapping, cfg.OrdinalMappings)
}
