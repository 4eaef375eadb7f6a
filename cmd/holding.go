package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/store"
)

var (
	holdingKind   string
	holdingReason string
	holdingLimit  int
	retryLimit    int
)

var holdingCmd = &cobra.Command{
	Use:   "holding",
	Short: "Inspect and retry parked intake records",
}

var holdingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List holding-queue entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListHolding(ctx, store.HoldingFilter{
			Kind:   model.HoldingKind(holdingKind),
			Reason: model.HoldingReason(holdingReason),
			Limit:  holdingLimit,
		})
		if err != nil {
			return err
		}

		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\t%d/%d\tnext=%s\t%s\n",
				e.ID, e.Kind, e.Reason, e.RetryCount, e.MaxRetries,
				e.NextRetryAt.Format("2006-01-02 15:04"), e.Detail)
		}
		return nil
	},
}

var holdingRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-run due holding-queue entries through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := zap.L().With(zap.String("component", "holding"))

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng, err := buildEngine(st)
		if err != nil {
			return err
		}

		res, err := eng.RetryHolding(ctx, retryLimit)
		if err != nil {
			return err
		}

		logger.Info("holding retry complete",
			zap.Int("attempted", res.Attempted),
			zap.Int("resolved", res.Resolved),
			zap.Int("requeued", res.Requeued))
		return nil
	},
}

func init() {
	holdingListCmd.Flags().StringVar(&holdingKind, "kind", "", "filter by kind (company or person)")
	holdingListCmd.Flags().StringVar(&holdingReason, "reason", "", "filter by hold reason")
	holdingListCmd.Flags().IntVar(&holdingLimit, "limit", 100, "maximum rows")
	holdingRetryCmd.Flags().IntVar(&retryLimit, "limit", 100, "maximum entries to retry")

	holdingCmd.AddCommand(holdingListCmd, holdingRetryCmd)
	rootCmd.AddCommand(holdingCmd)
}
