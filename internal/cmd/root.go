// Package cmd implements the claimguard command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runger/claimguard/internal/applog"
	"github.com/runger/claimguard/internal/config"
	"github.com/runger/claimguard/internal/pipeline"
)

// Command groups shown in help output.
const (
	groupPipeline = "pipeline"
	groupInspect  = "inspect"
	groupSetup    = "setup"
)

// globalOptions holds the persistent flags shared by all subcommands.
type globalOptions struct {
	configFile string
	root       string
	logLevel   string
}

// NewRootCmd builds the claimguard command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "claimguard",
		Short: "Insurance claim fraud pipeline",
		Long: `claimguard - batch fraud detection for insurance claims
  - validate raw CSV batches against a schema and quarantine bad files
  - cluster accepted claims and train one classifier per cluster
  - label new batches with the stored models`,
		SilenceUsage: true,
	}
	root.AddGroup(
		&cobra.Group{ID: groupPipeline, Title: "Pipeline Commands:"},
		&cobra.Group{ID: groupInspect, Title: "Inspection Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
	)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (default <root>/claimguard.yaml)")
	pf.StringVar(&g.root, "root", "", "workspace root (default $CLAIMGUARD_ROOT or the working directory)")
	pf.StringVar(&g.logLevel, "log-level", "", "override log.level: debug, info, warn, error")

	root.AddCommand(
		newTrainCmd(g),
		newPredictCmd(g),
		newValidateCmd(g),
		newArchiveCmd(g),
		newSchemaCmd(g),
		newArtifactsCmd(g),
		newRunsCmd(g),
		newConfigCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command. An interrupt cancels the running
// pipeline; the run is still recorded as failed.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return NewRootCmd().ExecuteContext(ctx)
}

// env is the resolved workspace of one invocation.
type env struct {
	cfg        *config.Config
	paths      *config.Paths
	configFile string
}

// load resolves the workspace root and reads the configuration. Errors
// carry the config exit code.
func (g *globalOptions) load() (*env, error) {
	paths := config.NewPaths(g.root)
	path := g.configFile
	if path == "" {
		path = paths.ConfigFile()
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Message: err.Error()}
	}
	if g.logLevel != "" {
		if err := cfg.Set("log.level", g.logLevel); err != nil {
			return nil, &ExitError{Code: ExitConfigError, Message: err.Error()}
		}
	}
	return &env{cfg: cfg, paths: paths, configFile: path}, nil
}

// logger returns the topic logger of mode. Records go to the mode's log
// directory and, with log.stderr set, to stderr as well.
func (e *env) logger(m config.Mode, stderr io.Writer) *slog.Logger {
	lc := &applog.Config{
		Dir:   e.paths.LogDir(m),
		Level: applog.ParseLevel(e.cfg.Log.Level),
	}
	if e.cfg.Log.Stderr {
		lc.Output = stderr
	}
	return applog.New(lc)
}

// options assembles the pipeline options of mode for cmd.
func (e *env) options(cmd *cobra.Command, m config.Mode, batchDir string) pipeline.Options {
	return pipeline.Options{
		Config:   e.cfg,
		Paths:    e.paths,
		BatchDir: batchDir,
		Logger:   e.logger(m, cmd.ErrOrStderr()),
		Display:  newDisplay(cmd.OutOrStdout()),
	}
}

// newDisplay renders styled progress only when writing to a terminal.
func newDisplay(out io.Writer) *pipeline.Display {
	mode := pipeline.DisplayPlain
	if out == io.Writer(os.Stdout) {
		mode = pipeline.DetectMode()
	}
	return pipeline.NewDisplay(out, mode)
}

// parseMode validates a --mode flag value.
func parseMode(s string) (config.Mode, error) {
	m := config.Mode(s)
	if !m.Valid() {
		return "", &ExitError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("invalid mode %q (must be %s or %s)", s, config.ModeTraining, config.ModePrediction),
		}
	}
	return m, nil
}
