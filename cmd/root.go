package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "esg-research",
	Short: "AI adoption and ESG outcomes research pipeline",
	Long:  "Ingests emissions, ESG rating, financial and SEC filing data for a firm roster, assembles a firm-year panel, assigns AI-exposure treatment and estimates difference-in-differences models.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
