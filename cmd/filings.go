package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/filings"
)

var filingsCmd = &cobra.Command{
	Use:   "filings",
	Short: "Ingest benefit-plan filings and cross-reference them against known companies",
}

var filingsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the filings dataset and load it into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := zap.L().With(zap.String("component", "filings"))

		if cfg.Filings.DatasetURL == "" {
			return eris.New("filings: dataset_url is not configured")
		}

		f, err := datasetFetcher(cfg.Filings.DatasetURL)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := filings.NewLoader(st, f, cfg.Filings).Sync(ctx)
		if err != nil {
			return err
		}

		logger.Info("filings sync complete",
			zap.Int("rows_read", res.RowsRead),
			zap.Int("rows_stored", res.RowsStored),
			zap.Int("rows_skipped", res.RowsSkipped))
		return nil
	},
}

var filingsXrefCmd = &cobra.Command{
	Use:   "xref",
	Short: "Cross-reference stored filings against company tax IDs and emit signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := zap.L().With(zap.String("component", "filings"))

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := filings.NewXref(st, cfg.Filings, cfg.Score).Run(ctx)
		if err != nil {
			return err
		}

		logger.Info("filings xref complete",
			zap.Int("companies_checked", res.CompaniesChecked),
			zap.Int("filings_matched", res.FilingsMatched),
			zap.Int("signals_emitted", res.SignalsEmitted))
		return nil
	},
}

func init() {
	filingsCmd.AddCommand(filingsSyncCmd, filingsXrefCmd)
	rootCmd.AddCommand(filingsCmd)
}
