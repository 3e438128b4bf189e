package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/esg-research/internal/treatment"
)

var exposureCmd = &cobra.Command{
	Use:   "exposure",
	Short: "AI exposure index",
}

var exposureBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the sector AI exposure index from O*NET",
	Long: `Scores O*NET occupations by the importance-weighted AI capability of their
abilities and work activities, scales the scores to 0-100, and averages them by
GICS sector. Writes treatment.exposure_file and an occupation-level file beside it.

With --download, missing O*NET files are fetched from treatment.onet_url.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		download, _ := cmd.Flags().GetBool("download")

		p, cleanup, err := newPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer cleanup()

		sectors, err := p.BuildExposure(ctx, download)
		if err != nil {
			return eris.Wrap(err, "exposure build")
		}
		formatSectors(os.Stdout, sectors)
		return nil
	},
}

func init() {
	exposureBuildCmd.Flags().Bool("download", false, "download missing O*NET files")
	exposureCmd.AddCommand(exposureBuildCmd)
	rootCmd.AddCommand(exposureCmd)
}

// formatSectors writes the sector exposure table.
func formatSectors(out io.Writer, sectors []treatment.SectorExposure) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SECTOR\tEXPOSURE\tSTD\tOCCUPATIONS")
	for _, s := range sectors {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%d\n", s.Sector, s.Exposure, s.Std, s.Occupations)
	}
	_ = w.Flush()
}
