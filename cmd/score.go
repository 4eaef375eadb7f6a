package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/store"
)

var (
	scoreTier  string
	scoreMin   float64
	scoreLimit int
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute and inspect intent scores",
}

var scoreRecomputeCmd = &cobra.Command{
	Use:   "recompute [company-id]",
	Short: "Recompute intent scores for one company or all companies",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := zap.L().With(zap.String("component", "score"))

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng, err := buildEngine(st)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			if err := eng.RecomputeScore(ctx, args[0]); err != nil {
				return err
			}
			logger.Info("score recomputed", zap.String("company_id", args[0]))
			return nil
		}

		companies, err := st.ListCompanies(ctx)
		if err != nil {
			return err
		}
		var failed int
		for _, c := range companies {
			if err := eng.RecomputeScore(ctx, c.ID); err != nil {
				failed++
				logger.Warn("recompute failed", zap.String("company_id", c.ID), zap.Error(err))
			}
		}
		logger.Info("scores recomputed", zap.Int("companies", len(companies)), zap.Int("failed", failed))
		return nil
	},
}

var scoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List intent scores, hottest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		scores, err := st.ListScores(ctx, store.ScoreFilter{
			Tier:     model.ScoreTier(scoreTier),
			MinScore: scoreMin,
			Limit:    scoreLimit,
		})
		if err != nil {
			return err
		}

		for _, s := range scores {
			fmt.Printf("%s\t%6.2f\t%s\t%s\n", s.CompanyID, s.Score, s.Tier, s.RecalculatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	scoreListCmd.Flags().StringVar(&scoreTier, "tier", "", "filter by tier (cold or warm)")
	scoreListCmd.Flags().Float64Var(&scoreMin, "min", 0, "minimum score")
	scoreListCmd.Flags().IntVar(&scoreLimit, "limit", 50, "maximum rows")

	scoreCmd.AddCommand(scoreRecomputeCmd, scoreListCmd)
	rootCmd.AddCommand(scoreCmd)
}
