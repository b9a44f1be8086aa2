package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/runger/claimguard/internal/artifact"
	"github.com/runger/claimguard/internal/config"
	"github.com/runger/claimguard/internal/storage"
)

func newArtifactsCmd(g *globalOptions) *cobra.Command {
	artifactsCmd := &cobra.Command{
		Use:     "artifacts",
		Short:   "Inspect stored models",
		GroupID: groupInspect,
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored encoder, partitioner and cluster classifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.load()
			if err != nil {
				return err
			}
			store, err := artifact.Open(e.paths.ModelsDir(), e.logger(config.ModeTraining, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer store.Close()

			metas, err := store.List()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), metas)
			}
			printArtifacts(cmd.OutOrStdout(), metas)
			return nil
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	artifactsCmd.AddCommand(listCmd)
	return artifactsCmd
}

func newRunsCmd(g *globalOptions) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:     "runs",
		Short:   "Inspect the run history",
		GroupID: groupInspect,
	}

	var (
		mode, status string
		limit        int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			e, err := g.load()
			if err != nil {
				return err
			}
			db, err := storage.NewSQLiteStore(e.paths.DatabaseFile(m))
			if err != nil {
				return &ExitError{Code: ExitStorageError, Message: err.Error()}
			}
			defer db.Close()

			runs, err := db.QueryRuns(cmd.Context(), storage.RunQuery{Mode: string(m), Status: status, Limit: limit})
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs, time.Now())
			return nil
		},
	}
	listCmd.Flags().StringVar(&mode, "mode", "training", "run kind: training or prediction")
	listCmd.Flags().StringVar(&status, "status", "", "only runs with this status: running, passed, failed")
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	runsCmd.AddCommand(listCmd)
	return runsCmd
}

func printArtifacts(w io.Writer, metas []artifact.Meta) {
	if len(metas) == 0 {
		fmt.Fprintln(w, "No artifacts stored. Run 'claimguard train' first.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tKIND\tALGORITHM\tCLUSTER\tSIZE\tCREATED")
	for _, m := range metas {
		clusterID := "-"
		if m.ClusterID != artifact.NoCluster {
			clusterID = fmt.Sprintf("%d", m.ClusterID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Key,
			m.Kind,
			m.Algorithm,
			clusterID,
			humanize.Bytes(uint64(m.Size)), //nolint:gosec // G115: sizes are never negative
			m.CreatedAt.Format(time.RFC3339),
		)
	}
	tw.Flush()
}

func printRuns(w io.Writer, runs []storage.PipelineRun, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tDURATION\tCLUSTERS\tERROR")
	for _, r := range runs {
		started := humanize.RelTime(time.UnixMilli(r.StartedAt), now, "ago", "from now")
		duration := "-"
		if r.EndedAt > 0 {
			duration = (time.Duration(r.DurationMs) * time.Millisecond).String()
		}
		errText := r.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.RunID,
			statusText(r.Status),
			started,
			duration,
			r.Clusters,
			errText,
		)
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
