package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "intent-core",
	Short: "Buyer-intent resolution pipeline",
	Long:  "Resolves raw company and person records into canonical identities, discovers email patterns through a cost-tiered waterfall, assigns seniority slots, and scores buyer-intent signals.",
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
