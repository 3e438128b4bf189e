package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage the firm roster",
}

var rosterBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Load the roster, optionally fill CIKs from EDGAR, and store it",
	Long: `Loads the roster CSV (paths.roster), validates firm keys, and upserts the
firms into the observation store.

With --enrich, missing CIKs and names are filled from SEC EDGAR's
company_tickers.json by ticker and the roster file is rewritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		enrich, _ := cmd.Flags().GetBool("enrich")

		p, cleanup, err := newPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer cleanup()

		roster, filled, err := p.BuildRoster(ctx, enrich)
		if err != nil {
			return eris.Wrap(err, "roster build")
		}

		fmt.Printf("Roster: %d firms", roster.Len())
		if enrich {
			fmt.Printf(", %d CIKs filled from EDGAR", filled)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rosterBuildCmd.Flags().Bool("enrich", false, "fill missing CIKs from EDGAR company tickers")
	rosterCmd.AddCommand(rosterBuildCmd)
	rootCmd.AddCommand(rosterCmd)
}
