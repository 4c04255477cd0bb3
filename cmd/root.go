package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cropsense/farmops/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "farmops",
	Short: "Crop disease diagnosis and farm record automation",
	Long:  "Diagnoses crop diseases from symptoms and photos through a staged analysis pipeline, persists the reports, and writes daily logs and follow-up tasks back to the farm records.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
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
