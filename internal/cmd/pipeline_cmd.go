package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/runger/claimguard/internal/config"
	"github.com/runger/claimguard/internal/pipeline"
)

func newTrainCmd(g *globalOptions) *cobra.Command {
	var batch string
	c := &cobra.Command{
		Use:   "train",
		Short: "Validate a training batch and fit the per-cluster models",
		Long: `Validate the training batch, load the accepted files into the training
database, cluster the exported rows and keep the better of the linear and
the boosted classifier for every cluster.

Models of the previous training run are replaced only after the new batch
has been read successfully.`,
		GroupID: groupPipeline,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.load()
			if err != nil {
				return err
			}
			res, err := pipeline.NewTrainer(e.options(cmd, config.ModeTraining, batch)).Run(cmd.Context())
			if err != nil {
				return err
			}
			printTraining(cmd.OutOrStdout(), res)
			return nil
		},
	}
	c.Flags().StringVar(&batch, "batch", "", "batch directory (default <root>/Training_Batch_Files)")
	return c
}

func newPredictCmd(g *globalOptions) *cobra.Command {
	var batch, output string
	c := &cobra.Command{
		Use:   "predict",
		Short: "Label a prediction batch with the stored models",
		Long: `Validate the prediction batch, assign every accepted row to a cluster
and append one label per row to the prediction output file.`,
		GroupID: groupPipeline,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.load()
			if err != nil {
				return err
			}
			p := pipeline.NewPredictor(e.options(cmd, config.ModePrediction, batch))
			p.OutputFile = output
			res, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			printPrediction(cmd.OutOrStdout(), res)
			return nil
		},
	}
	c.Flags().StringVar(&batch, "batch", "", "batch directory (default <root>/Prediction_Batch_Files)")
	c.Flags().StringVar(&output, "output", "", "prediction file (default <root>/Prediction_Output_File/Predictions.csv)")
	return c
}

func printIntake(w io.Writer, in *pipeline.IntakeSummary) {
	if in == nil {
		return
	}
	fmt.Fprintf(w, "Files:     %d accepted, %d quarantined\n", len(in.Accepted), len(in.Quarantined))
	if in.ArchiveDir != "" {
		fmt.Fprintf(w, "Archive:   %s\n", in.ArchiveDir)
	}
	fmt.Fprintf(w, "Rows:      %d\n", in.Rows)
}

func printTraining(w io.Writer, res *pipeline.TrainingResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s\n", colorBold.Sprint("Training complete"))
	fmt.Fprintf(w, "Run:       %s\n", res.RunID)
	printIntake(w, res.Intake)
	fmt.Fprintf(w, "Clusters:  %d\n", res.K)
	if res.ElbowChart != "" {
		fmt.Fprintf(w, "Chart:     %s\n", res.ElbowChart)
	}
	if len(res.EmptyClusters) > 0 {
		fmt.Fprintf(w, "%s clusters %v have no rows and no classifier\n", colorYellow.Sprint("Warning:"), res.EmptyClusters)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\tROWS\tMODEL\tMETRIC\tLOGISTIC\tBOOSTING\tKEY")
	for _, c := range res.Clusters {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%.4f\t%.4f\t%s\n",
			c.Cluster,
			c.Rows,
			c.Selection.Algorithm,
			c.Selection.Metric,
			c.Selection.LogisticScore,
			c.Selection.BoostingScore,
			c.Key,
		)
	}
	tw.Flush()
}

func printPrediction(w io.Writer, res *pipeline.PredictionResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s\n", colorBold.Sprint("Prediction complete"))
	fmt.Fprintf(w, "Run:       %s\n", res.RunID)
	printIntake(w, res.Intake)
	fmt.Fprintf(w, "Labels:    %d (%d positive)\n", res.Rows, res.Positive)
	fmt.Fprintf(w, "Output:    %s\n", res.OutputFile)
}
