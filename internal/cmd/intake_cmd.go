package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/runger/claimguard/internal/pipeline"
	"github.com/runger/claimguard/internal/rawvalidation"
	"github.com/runger/claimguard/internal/schema"
)

func newValidateCmd(g *globalOptions) *cobra.Command {
	var mode, batch string
	c := &cobra.Command{
		Use:   "validate",
		Short: "Run the raw file checks on a batch without loading it",
		Long: `Run the file name, column count and null column checks on a batch.

Conforming files are copied to the accepted partition and the rest to the
quarantine partition. Nothing is loaded, trained or archived.`,
		GroupID: groupPipeline,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			e, err := g.load()
			if err != nil {
				return err
			}
			opts := e.options(cmd, m, batch)
			s, err := pipeline.LoadSchema(m, opts)
			if err != nil {
				return err
			}

			dir := batch
			if dir == "" {
				dir = e.paths.BatchDir(m)
			}
			report, err := pipeline.NewValidator(m, opts).Run(cmd.Context(), dir, s)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	c.Flags().StringVar(&mode, "mode", "training", "batch kind: training or prediction")
	c.Flags().StringVar(&batch, "batch", "", "batch directory (default: the batch directory of the mode)")
	return c
}

func newArchiveCmd(g *globalOptions) *cobra.Command {
	var mode string
	c := &cobra.Command{
		Use:     "archive",
		Short:   "Move the quarantine partition into a timestamped archive",
		GroupID: groupPipeline,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			e, err := g.load()
			if err != nil {
				return err
			}
			dir, err := pipeline.NewValidator(m, e.options(cmd, m, "")).ArchiveAndClearQuarantine()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dir == "" {
				fmt.Fprintln(out, "Quarantine is empty, nothing archived")
				return nil
			}
			fmt.Fprintf(out, "Archived quarantine to %s\n", dir)
			return nil
		},
	}
	c.Flags().StringVar(&mode, "mode", "training", "batch kind: training or prediction")
	return c
}

func newSchemaCmd(_ *globalOptions) *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:     "schema",
		Short:   "Inspect schema documents",
		GroupID: groupInspect,
	}
	schemaCmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Parse a schema document and print what it accepts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := schema.Load(args[0])
			if err != nil {
				return err
			}
			printSchema(cmd.OutOrStdout(), args[0], s)
			return nil
		},
	})
	return schemaCmd
}

func printReport(w io.Writer, report *rawvalidation.Report) {
	fmt.Fprintf(w, "%s %d accepted, %d quarantined\n",
		colorBold.Sprint("Validation:"), len(report.Accepted), len(report.Quarantined))
	if len(report.Accepted)+len(report.Quarantined) == 0 {
		return
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATE\tREASON\tDETAIL")
	for _, o := range report.Accepted {
		fmt.Fprintf(tw, "%s\t%s\t-\t-\n", o.Name, colorGreen.Sprint(o.State))
	}
	for _, o := range report.Quarantined {
		detail := o.Detail
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Name, colorRed.Sprint(o.State), o.Reason, detail)
	}
	tw.Flush()
}

func printSchema(w io.Writer, path string, s *schema.Schema) {
	fmt.Fprintf(w, "%s %s\n", colorBold.Sprint("Schema:"), path)
	fmt.Fprintf(w, "  sample file:  %s\n", s.SampleFileName())
	fmt.Fprintf(w, "  pattern:      %s\n", s.Pattern())
	fmt.Fprintf(w, "  stamp widths: date %d, time %d\n", s.DateStampWidth(), s.TimeStampWidth())
	fmt.Fprintf(w, "  columns:      %d\n", s.ColumnCount())
	for _, col := range s.Columns() {
		fmt.Fprintf(w, "    %s %s\n", colorCyan.Sprint(col.Name), colorDim.Sprint(col.Type))
	}
	for _, warn := range s.Warnings() {
		fmt.Fprintf(w, "%s %s\n", colorYellow.Sprint("warning:"), warn)
	}
}
