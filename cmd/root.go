package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "skiwithcare-datagen",
	Short: "Build the ski resort and medical facility datasets",
	Long:  "Geocodes ski resorts, hospitals and dialysis clinics, matches every facility to its nearest resort, and writes the JSON datasets the site serves.",
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
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
