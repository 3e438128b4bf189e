package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingest, panel, treatment and estimation end to end",
	Long: `Runs every stage for one run id: ingest the configured sources, assemble
the panel, attach treatment, estimate all configured specifications, and write
summary.json and run.yaml alongside the outputs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		names, _ := cmd.Flags().GetString("sources")
		req := parseEstimateRequest(cmd)

		p, cleanup, err := newPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer cleanup()

		zap.L().Info("starting run", zap.String("run_id", p.RunID()))
		res, err := p.Run(ctx, splitList(names), req)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		formatLoadResults(os.Stdout, res.Loads)
		fmt.Println()
		formatResults(os.Stdout, res.Estimates.Results())
		fmt.Printf("\nRun %s complete -> %s\n", p.RunID(), p.OutputDir())
		return nil
	},
}

func init() {
	runCmd.Flags().String("sources", "", "comma-separated source names (default: all configured)")
	runCmd.Flags().StringSlice("metric", nil, "outcome metric(s) (default estimate.metrics)")
	runCmd.Flags().StringSlice("spec", nil, "specification(s): basic, twfe, continuous, event, within, builder")
	runCmd.Flags().String("se", "", "standard errors: classical, hc1, hc3, cluster")
	runCmd.Flags().String("transform", "", "outcome transform: level, log1p")
	rootCmd.AddCommand(runCmd)
}
