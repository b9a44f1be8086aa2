package pipeline

import (
	"context"
	"sort"

	"github.com/runger/claimguard/internal/applog"
	"github.com/runger/claimguard/internal/config"
	"github.com/runger/claimguard/internal/dataset"
	"github.com/runger/claimguard/internal/rawvalidation"
	"github.com/runger/claimguard/internal/schema"
	"github.com/runger/claimguard/internal/storage"
)

// reasonLoadFailed marks a file quarantined because its rows could not
// be inserted into the accepted-rows table.
const reasonLoadFailed = "db_insert"

// Stage names shared by both flows.
const (
	stageSchema   = "load schema"
	stageValidate = "validate raw files"
	stageLoad     = "load database"
	stageArchive  = "archive quarantine"
	stageExport   = "export accepted rows"
)

// IntakeSummary describes how a batch moved through validation and the
// relational round trip.
type IntakeSummary struct {
	Accepted    []string
	Quarantined []string
	ArchiveDir  string
	Rows        int
	ExportFile  string
}

// SchemaPath returns the schema document used for mode.
func SchemaPath(m config.Mode, cfg *config.Config, paths *config.Paths) string {
	if m == config.ModePrediction {
		return paths.SchemaFile(cfg.Validation.PredictionSchema)
	}
	return paths.SchemaFile(cfg.Validation.TrainingSchema)
}

// NewValidator returns the raw file validator for the partitions of mode.
func NewValidator(m config.Mode, opts Options) *rawvalidation.Validator {
	return rawvalidation.New(rawvalidation.Partitions{
		Accepted:    opts.Paths.AcceptedDir(m),
		Quarantine:  opts.Paths.QuarantineDir(m),
		ArchiveRoot: opts.Paths.ArchiveDir(m),
	},
		rawvalidation.WithLogger(opts.Logger),
		rawvalidation.WithClock(opts.Now),
		rawvalidation.WithIdentifierColumn(opts.Config.Validation.IdentifierColumn),
	)
}

// LoadSchema reads the schema document of mode and logs its warnings.
func LoadSchema(m config.Mode, opts Options) (*schema.Schema, error) {
	path := SchemaPath(m, opts.Config, opts.Paths)
	s, err := schema.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.Logger != nil {
		for _, w := range s.Warnings() {
			applog.LogSchemaWarning(opts.Logger, path, w)
		}
	}
	return s, nil
}

// intake validates the batch, loads the accepted files into the
// database, archives the quarantine and reads back the exported rows.
func (r *run) intake(ctx context.Context) (*dataset.Frame, *IntakeSummary, error) {
	opts := r.opts
	opts.Logger = r.logger
	summary := &IntakeSummary{ExportFile: opts.Paths.ExportFile(r.mode)}

	var s *schema.Schema
	err := r.stage(ctx, stageSchema, func() error {
		var err error
		s, err = LoadSchema(r.mode, opts)
		return err
	})
	if err != nil {
		return nil, summary, err
	}

	validator := NewValidator(r.mode, opts)
	var report *rawvalidation.Report
	err = r.stage(ctx, stageValidate, func() error {
		var err error
		report, err = validator.Run(ctx, opts.batchDir(r.mode), s)
		return err
	})
	if err != nil {
		return nil, summary, err
	}
	for _, f := range report.Quarantined {
		r.opts.Display.Quarantined(f.Name, string(f.Reason))
	}

	var loaded *storage.LoadResult
	err = r.stage(ctx, stageLoad, func() error {
		logger := r.logger.With(applog.Topic(applog.TopicDBInsert))
		if err := r.db.ResetTable(ctx, storage.AcceptedTable, s.ColumnNames(), opts.Config.Validation.IdentifierColumn); err != nil {
			return err
		}
		var err error
		loaded, err = r.db.LoadDirectory(ctx, storage.AcceptedTable, validator.Partitions().Accepted, validator.Partitions().Quarantine)
		if err != nil {
			return err
		}
		for _, name := range loaded.Quarantined {
			logger.Warn("file failed to load and was quarantined", "file", name)
			r.opts.Display.Quarantined(name, reasonLoadFailed)
		}
		logger.Info("accepted files loaded", "files", len(loaded.Loaded), "rows", loaded.Rows)
		return nil
	})
	if err != nil {
		return nil, summary, err
	}
	r.recordValidations(ctx, report, loaded)

	summary.Rows = loaded.Rows
	for name := range loaded.Loaded {
		summary.Accepted = append(summary.Accepted, name)
	}
	sort.Strings(summary.Accepted)
	summary.Quarantined = append(report.QuarantinedNames(), loaded.Quarantined...)
	sort.Strings(summary.Quarantined)

	err = r.stage(ctx, stageArchive, func() error {
		var err error
		summary.ArchiveDir, err = validator.ArchiveAndClearQuarantine()
		return err
	})
	if err != nil {
		return nil, summary, err
	}

	var frame *dataset.Frame
	err = r.stage(ctx, stageExport, func() error {
		n, err := r.db.ExportCSV(ctx, storage.AcceptedTable, summary.ExportFile)
		if err != nil {
			return err
		}
		r.logger.Info("accepted rows exported", applog.Topic(applog.TopicDBExport), "path", summary.ExportFile, "rows", n)
		if n == 0 {
			return ErrNoData
		}
		frame, err = dataset.ReadCSV(summary.ExportFile)
		return err
	})
	if err != nil {
		return nil, summary, err
	}
	return frame, summary, nil
}

// recordValidations stores every file outcome of the pass in the run
// audit tables. Failures are logged; the audit never ends a run.
func (r *run) recordValidations(ctx context.Context, report *rawvalidation.Report, loaded *storage.LoadResult) {
	failed := make(map[string]bool, len(loaded.Quarantined))
	for _, name := range loaded.Quarantined {
		failed[name] = true
	}

	var files []storage.FileValidation
	add := func(f rawvalidation.FileOutcome) {
		fv := storage.FileValidation{
			FileName:   f.Name,
			State:      f.State.String(),
			Reason:     string(f.Reason),
			Detail:     f.Detail,
			RowsLoaded: loaded.Loaded[f.Name],
		}
		if failed[f.Name] {
			fv.Reason = reasonLoadFailed
		}
		files = append(files, fv)
		r.events.Write(EventValidation, ValidationData{
			RunID:  r.id,
			File:   fv.FileName,
			State:  fv.State,
			Reason: fv.Reason,
			Detail: fv.Detail,
		})
	}
	for _, f := range report.Accepted {
		add(f)
	}
	for _, f := range report.Quarantined {
		add(f)
	}

	if err := r.db.RecordFileValidations(ctx, r.id, files); err != nil {
		r.logger.Warn("failed to record file validations", applog.Topic(applog.TopicGeneral), "run_id", r.id, "error", err)
	}
}
