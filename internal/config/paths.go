// Package config provides configuration management for claimguard.
package config

import (
	"os"
	"path/filepath"
)

// Mode selects which half of the pipeline a directory layout belongs to.
type Mode string

// Pipeline modes.
const (
	ModeTraining   Mode = "training"
	ModePrediction Mode = "prediction"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeTraining || m == ModePrediction
}

// Paths holds the directory layout of a claimguard workspace.
// Every path is derived from Root.
type Paths struct {
	// Root is the workspace directory (defaults to the working directory)
	Root string
}

// NewPaths returns the layout rooted at root. An empty root resolves
// to CLAIMGUARD_ROOT, then to the working directory.
func NewPaths(root string) *Paths {
	if root == "" {
		root = os.Getenv("CLAIMGUARD_ROOT")
	}
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		} else {
			root = "."
		}
	}
	return &Paths{Root: root}
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.Root, "claimguard.yaml")
}

// SchemaFile resolves a schema document name against the root.
func (p *Paths) SchemaFile(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.Root, name)
}

// BatchDir returns the intake directory for raw batch files.
func (p *Paths) BatchDir(m Mode) string {
	if m == ModePrediction {
		return filepath.Join(p.Root, "Prediction_Batch_Files")
	}
	return filepath.Join(p.Root, "Training_Batch_Files")
}

// ValidatedDir returns the parent of the accepted and quarantine partitions.
func (p *Paths) ValidatedDir(m Mode) string {
	if m == ModePrediction {
		return filepath.Join(p.Root, "Prediction_Raw_Files_Validated")
	}
	return filepath.Join(p.Root, "Training_Raw_Files_Validated")
}

// AcceptedDir returns the partition of files that passed validation.
func (p *Paths) AcceptedDir(m Mode) string {
	return filepath.Join(p.ValidatedDir(m), "Good_Raw")
}

// QuarantineDir returns the partition of files that failed validation.
func (p *Paths) QuarantineDir(m Mode) string {
	return filepath.Join(p.ValidatedDir(m), "Bad_Raw")
}

// ArchiveDir returns the directory holding timestamped quarantine snapshots.
func (p *Paths) ArchiveDir(m Mode) string {
	if m == ModePrediction {
		return filepath.Join(p.Root, "PredictionArchiveBadData")
	}
	return filepath.Join(p.Root, "TrainingArchiveBadData")
}

// DatabaseFile returns the path to the SQLite database of a mode.
func (p *Paths) DatabaseFile(m Mode) string {
	if m == ModePrediction {
		return filepath.Join(p.Root, "Prediction_Database", "Prediction.db")
	}
	return filepath.Join(p.Root, "Training_Database", "Training.db")
}

// ExportFile returns the flat CSV exported from the accepted-rows table.
func (p *Paths) ExportFile(m Mode) string {
	if m == ModePrediction {
		return filepath.Join(p.Root, "Prediction_FileFromDB", "InputFile.csv")
	}
	return filepath.Join(p.Root, "Training_FileFromDB", "InputFile.csv")
}

// LogDir returns the per-topic log directory of a mode.
func (p *Paths) LogDir(m Mode) string {
	if m == ModePrediction {
		return filepath.Join(p.Root, "Prediction_Logs")
	}
	return filepath.Join(p.Root, "Training_Logs")
}

// RunLogDir returns the directory of JSONL run event logs.
func (p *Paths) RunLogDir() string {
	return filepath.Join(p.Root, "runs")
}

// ModelsDir returns the artifact storage directory.
func (p *Paths) ModelsDir() string {
	return filepath.Join(p.Root, "models")
}

// PreprocessingDir returns the directory for diagnostics such as the
// elbow chart and the null-value report.
func (p *Paths) PreprocessingDir() string {
	return filepath.Join(p.Root, "preprocessing_data")
}

// PredictionOutputFile returns the CSV that predictions are appended to.
func (p *Paths) PredictionOutputFile() string {
	return filepath.Join(p.Root, "Prediction_Output_File", "Predictions.csv")
}

// EnsureDirectories creates the directories a run of mode m writes into.
func (p *Paths) EnsureDirectories(m Mode) error {
	dirs := []string{
		p.Root,
		p.BatchDir(m),
		p.LogDir(m),
		p.RunLogDir(),
		p.ModelsDir(),
		p.PreprocessingDir(),
		filepath.Dir(p.DatabaseFile(m)),
		filepath.Dir(p.ExportFile(m)),
	}
	if m == ModePrediction {
		dirs = append(dirs, filepath.Dir(p.PredictionOutputFile()))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return nil
}
