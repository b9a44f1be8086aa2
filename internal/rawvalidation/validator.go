// Package rawvalidation checks raw batch files against a schema and routes
// them into an accepted or a quarantine partition.
//
// A pass runs three checks in order: file name, column count, and
// whole-column nullness. Files are copied out of the intake directory by
// the name check and then only ever moved from accepted to quarantine.
package rawvalidation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/runger/claimguard/internal/applog"
	"github.com/runger/claimguard/internal/dataset"
	"github.com/runger/claimguard/internal/schema"
)

// DefaultIdentifierColumn is the name given to a positional index column.
const DefaultIdentifierColumn = "record_id"

// DefaultMissingMarkers are the cell values counted as missing by the
// null-column check.
var DefaultMissingMarkers = []string{"", "NA", "NaN", "NULL", "null", "nan", "N/A", "<NA>"}

// indexHeaders are the header names of an unnamed positional index column.
var indexHeaders = []string{"", "Unnamed: 0"}

// Partitions names the directories a validation pass works in.
type Partitions struct {
	Accepted    string
	Quarantine  string
	ArchiveRoot string
}

// Validator runs the raw file checks for one partition set.
type Validator struct {
	parts      Partitions
	logger     *slog.Logger
	now        func() time.Time
	identifier string
	missing    map[string]bool
	ledger     *Ledger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger. Records are tagged with per-check topics.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithClock sets the time source used to name archive directories.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithIdentifierColumn sets the name a positional index column is renamed to.
func WithIdentifierColumn(name string) Option {
	return func(v *Validator) {
		if name != "" {
			v.identifier = name
		}
	}
}

// WithMissingMarkers replaces the values treated as missing.
func WithMissingMarkers(markers []string) Option {
	return func(v *Validator) {
		v.missing = markerSet(markers)
	}
}

// New returns a validator for the given partitions.
func New(p Partitions, opts ...Option) *Validator {
	v := &Validator{
		parts:      p,
		logger:     slog.Default(),
		now:        time.Now,
		identifier: DefaultIdentifierColumn,
		missing:    markerSet(DefaultMissingMarkers),
		ledger:     NewLedger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func markerSet(markers []string) map[string]bool {
	set := make(map[string]bool, len(markers))
	for _, m := range markers {
		set[m] = true
	}
	return set
}

// Partitions returns the directories the validator works in.
func (v *Validator) Partitions() Partitions {
	return v.parts
}

// Ledger returns the per-file record of the current pass.
func (v *Validator) Ledger() *Ledger {
	return v.ledger
}

// PreparePartitions ensures the accepted and quarantine directories exist.
// Existing contents are left untouched.
func (v *Validator) PreparePartitions() error {
	for _, dir := range []string{v.parts.Accepted, v.parts.Quarantine} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &StorageError{Op: "create", Path: dir, Err: err}
		}
	}
	return nil
}

// ResetPartitions empties both partitions and the ledger at the start of
// a pass. Any quarantine left unarchived by a previous pass is discarded.
func (v *Validator) ResetPartitions() error {
	v.ledger = NewLedger()
	log := v.logger.With(applog.Topic(applog.TopicGeneral))
	for _, dir := range []string{v.parts.Quarantine, v.parts.Accepted} {
		if _, err := os.Stat(dir); err == nil {
			log.Info("removing partition before validation", "dir", dir)
		}
		if err := os.RemoveAll(dir); err != nil {
			return &StorageError{Op: "remove", Path: dir, Err: err}
		}
	}
	return v.PreparePartitions()
}

// ArchiveAndClearQuarantine moves the quarantine contents into a new
// BadData_<date>_<time> directory under the archive root and removes the
// quarantine directory. It returns the archive directory, or "" when
// there is no quarantine partition.
func (v *Validator) ArchiveAndClearQuarantine() (string, error) {
	log := v.logger.With(applog.Topic(applog.TopicArchive))

	info, err := os.Stat(v.parts.Quarantine)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("no quarantine partition to archive", "dir", v.parts.Quarantine)
		return "", nil
	}
	if err != nil {
		return "", &StorageError{Op: "stat", Path: v.parts.Quarantine, Err: err}
	}
	if !info.IsDir() {
		return "", &StorageError{Op: "stat", Path: v.parts.Quarantine, Err: errors.New("not a directory")}
	}

	now := v.now()
	dest := filepath.Join(v.parts.ArchiveRoot, "BadData_"+now.Format("2006-01-02")+"_"+now.Format("150405"))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", &StorageError{Op: "create", Path: dest, Err: err}
	}

	entries, err := os.ReadDir(v.parts.Quarantine)
	if err != nil {
		return "", &StorageError{Op: "list", Path: v.parts.Quarantine, Err: err}
	}

	moved := 0
	for _, e := range entries {
		target := filepath.Join(dest, e.Name())
		if _, err := os.Lstat(target); err == nil {
			log.Warn("file already archived, skipping", "file", e.Name(), "archive", dest)
			continue
		}
		if err := os.Rename(filepath.Join(v.parts.Quarantine, e.Name()), target); err != nil {
			return "", &StorageError{Op: "archive", Path: e.Name(), Err: err}
		}
		moved++
	}

	if err := os.RemoveAll(v.parts.Quarantine); err != nil {
		return "", &StorageError{Op: "remove", Path: v.parts.Quarantine, Err: err}
	}

	log.Info("quarantined files archived", "archive", dest, "files", moved)
	return dest, nil
}

// ClassifyByName copies each file of intakeDir into the accepted or the
// quarantine partition by its name alone. File content is never read.
func (v *Validator) ClassifyByName(intakeDir string, files []string, s *schema.Schema) error {
	log := v.logger.With(applog.Topic(applog.TopicNameCheck))

	for _, name := range files {
		src := filepath.Join(intakeDir, name)

		reason, detail := checkName(name, s)
		if reason == ReasonNone {
			if err := v.ledger.Advance(name, StateNameValid, ReasonNone, ""); err != nil {
				return err
			}
			if err := copyFile(src, filepath.Join(v.parts.Accepted, name)); err != nil {
				return err
			}
			log.Info("valid file name, copied to accepted partition", "file", name)
			continue
		}

		if err := v.ledger.Advance(name, StateNameInvalid, reason, detail); err != nil {
			return err
		}
		if err := copyFile(src, filepath.Join(v.parts.Quarantine, name)); err != nil {
			return err
		}
		log.Warn("invalid file name, copied to quarantine", "file", name, "reason", reason, "detail", detail)
	}

	return nil
}

// checkName returns the first reason name does not conform to s.
func checkName(name string, s *schema.Schema) (Reason, string) {
	if !s.Pattern().MatchString(name) {
		return ReasonNamePattern, fmt.Sprintf("does not match %s", s.Pattern())
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return ReasonNamePattern, "expected <prefix>_<date>_<time>"
	}

	date, clock := parts[len(parts)-2], parts[len(parts)-1]
	if len(date) != s.DateStampWidth() {
		return ReasonDateStamp, fmt.Sprintf("date stamp %q has %d characters, want %d", date, len(date), s.DateStampWidth())
	}
	if len(clock) != s.TimeStampWidth() {
		return ReasonTimeStamp, fmt.Sprintf("time stamp %q has %d characters, want %d", clock, len(clock), s.TimeStampWidth())
	}
	return ReasonNone, ""
}

// ValidateColumnCount moves every accepted file whose header does not
// have s.ColumnCount() fields into quarantine.
func (v *Validator) ValidateColumnCount(s *schema.Schema) error {
	log := v.logger.With(applog.Topic(applog.TopicColumnCheck))
	log.Info("column count validation started", "want", s.ColumnCount())

	names, err := listFiles(v.parts.Accepted)
	if err != nil {
		return &StorageError{Op: "list", Path: v.parts.Accepted, Err: err}
	}

	for _, name := range names {
		v.ledger.adopt(name, StateNameValid)
		if v.ledger.State(name) != StateNameValid {
			continue
		}

		header, err := dataset.ReadHeader(filepath.Join(v.parts.Accepted, name))
		if err != nil {
			if qerr := v.quarantine(name, StateColumnCountInvalid, ReasonUnreadable, err.Error()); qerr != nil {
				return qerr
			}
			log.Warn("unreadable file, moved to quarantine", "file", name, "error", err)
			continue
		}

		if len(header) != s.ColumnCount() {
			detail := fmt.Sprintf("got %d columns, want %d", len(header), s.ColumnCount())
			if err := v.quarantine(name, StateColumnCountInvalid, ReasonColumnCount, detail); err != nil {
				return err
			}
			log.Warn("invalid column count, moved to quarantine", "file", name, "got", len(header), "want", s.ColumnCount())
			continue
		}

		if err := v.ledger.Advance(name, StateColumnCountValid, ReasonNone, ""); err != nil {
			return err
		}
	}

	log.Info("column count validation completed")
	return nil
}

// ValidateNoAllNullColumns moves every accepted file that has a column
// with no present value into quarantine. Files that pass get their
// positional index column renamed to the identifier column.
func (v *Validator) ValidateNoAllNullColumns() error {
	log := v.logger.With(applog.Topic(applog.TopicNullCheck))
	log.Info("missing values validation started")

	names, err := listFiles(v.parts.Accepted)
	if err != nil {
		return &StorageError{Op: "list", Path: v.parts.Accepted, Err: err}
	}

	for _, name := range names {
		v.ledger.adopt(name, StateColumnCountValid)
		if v.ledger.State(name) != StateColumnCountValid {
			continue
		}

		path := filepath.Join(v.parts.Accepted, name)
		frame, err := dataset.ReadCSV(path)
		if err != nil {
			if qerr := v.quarantine(name, StateHasAllNullColumn, ReasonUnreadable, err.Error()); qerr != nil {
				return qerr
			}
			log.Warn("unreadable file, moved to quarantine", "file", name, "error", err)
			continue
		}

		if frame.Len() == 0 {
			if err := v.quarantine(name, StateHasAllNullColumn, ReasonNoDataRows, "header only"); err != nil {
				return err
			}
			log.Warn("file has no data rows, moved to quarantine", "file", name)
			continue
		}

		if col := v.firstAllNullColumn(frame); col >= 0 {
			column := frame.Columns[col]
			if err := v.quarantine(name, StateHasAllNullColumn, ReasonAllNullColumn, column); err != nil {
				return err
			}
			log.Warn("column has only missing values, moved to quarantine", "file", name, "column", column)
			continue
		}

		if v.renameIndexColumn(frame) {
			if err := frame.WriteCSV(path); err != nil {
				return &StorageError{Op: "rewrite", Path: path, Err: err}
			}
			log.Debug("positional index column renamed", "file", name, "column", v.identifier)
		}

		if err := v.ledger.Advance(name, StateNoAllNullColumns, ReasonNone, ""); err != nil {
			return err
		}
		log.Info("file accepted", "file", name, "rows", frame.Len())
	}

	log.Info("missing values validation completed")
	return nil
}

func (v *Validator) firstAllNullColumn(f *dataset.Frame) int {
	for j := range f.Columns {
		allMissing := true
		for _, row := range f.Rows {
			if !v.missing[row[j]] {
				allMissing = false
				break
			}
		}
		if allMissing {
			return j
		}
	}
	return -1
}

// renameIndexColumn renames the first unnamed positional column to the
// identifier column. It reports whether the header changed.
func (v *Validator) renameIndexColumn(f *dataset.Frame) bool {
	if f.Index(v.identifier) >= 0 {
		return false
	}
	for _, h := range indexHeaders {
		if idx := f.Index(h); idx >= 0 {
			f.Columns[idx] = v.identifier
			return true
		}
	}
	return false
}

// quarantine records the failed state of name and moves it out of the
// accepted partition.
func (v *Validator) quarantine(name string, to State, reason Reason, detail string) error {
	if err := v.ledger.Advance(name, to, reason, detail); err != nil {
		return err
	}
	src := filepath.Join(v.parts.Accepted, name)
	if err := os.Rename(src, filepath.Join(v.parts.Quarantine, name)); err != nil {
		return &StorageError{Op: "move", Path: src, Err: err}
	}
	return nil
}

// Run performs a full validation pass over intakeDir: reset the
// partitions, then run the name, column-count and null-column checks.
func (v *Validator) Run(ctx context.Context, intakeDir string, s *schema.Schema) (*Report, error) {
	if err := v.ResetPartitions(); err != nil {
		return nil, err
	}

	files, err := listFiles(intakeDir)
	if err != nil {
		return nil, &StorageError{Op: "list", Path: intakeDir, Err: err}
	}

	steps := []func() error{
		func() error { return v.ClassifyByName(intakeDir, files, s) },
		func() error { return v.ValidateColumnCount(s) },
		v.ValidateNoAllNullColumns,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step(); err != nil {
			return nil, err
		}
	}

	return v.Report(), nil
}

// listFiles returns the names of the regular files in dir, sorted.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &StorageError{Op: "copy", Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &StorageError{Op: "copy", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &StorageError{Op: "copy", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &StorageError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}
