package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Assemble the firm-year panel from the store",
	Long: `Builds the firm-year panel from every stored observation, resolving source
conflicts by panel.source_priority, and writes panel.csv, provenance.csv and,
when panel.write_xlsx is set, panel.xlsx.

With --treatment, exposure and treatment columns are attached first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		withTreatment, _ := cmd.Flags().GetBool("treatment")

		p, cleanup, err := newPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer cleanup()

		pl, err := p.Panel(ctx)
		if err != nil {
			return eris.Wrap(err, "panel")
		}
		if withTreatment {
			if _, err := p.Treat(ctx, pl); err != nil {
				return eris.Wrap(err, "panel: treatment")
			}
		}
		if err := p.WritePanel(pl); err != nil {
			return eris.Wrap(err, "panel")
		}
		if err := p.Finish("panel", pl.Treatment, nil); err != nil {
			zap.L().Error("write run manifest", zap.Error(err))
		}

		fmt.Printf("Panel: %d firms, %d years, %d rows, %d metrics -> %s\n",
			len(pl.Firms()), len(pl.Years()), len(pl.Rows), len(pl.Metrics), p.OutputDir())
		return nil
	},
}

func init() {
	panelCmd.Flags().Bool("treatment", false, "attach exposure and treatment columns")
	rootCmd.AddCommand(panelCmd)
}
