package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/fetcher"
	"github.com/sells-group/intent-core/internal/model"
)

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Ingest raw company and person records",
}

var intakeCompaniesCmd = &cobra.Command{
	Use:   "companies <csv>",
	Short: "Resolve a CSV of raw company records into canonical identities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := zap.L().With(zap.String("component", "intake"))

		raws, err := readCompanyCSV(ctx, args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng, err := buildEngine(st)
		if err != nil {
			return err
		}
		res, err := eng.ProcessCompanies(ctx, raws, cfg.Batch.Concurrency)
		if err != nil {
			return err
		}

		logger.Info("company intake complete",
			zap.Int("processed", res.Processed),
			zap.Int("resolved", res.Resolved),
			zap.Int("created", res.Created),
			zap.Int("held", res.Held),
			zap.Int("failed", res.Failed))
		return nil
	},
}

var intakePeopleCmd = &cobra.Command{
	Use:   "people <csv>",
	Short: "Place a CSV of raw person records into seniority slots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := zap.L().With(zap.String("component", "intake"))

		raws, err := readPersonCSV(ctx, args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng, err := buildEngine(st)
		if err != nil {
			return err
		}
		res, err := eng.ProcessPeople(ctx, raws, cfg.Batch.Concurrency)
		if err != nil {
			return err
		}

		logger.Info("person intake complete",
			zap.Int("processed", res.Processed),
			zap.Int("resolved", res.Resolved),
			zap.Int("held", res.Held),
			zap.Int("failed", res.Failed))
		return nil
	},
}

// readCompanyCSV parses an intake CSV with a header row into raw company
// records. Recognized columns: name, domain, tax_id, city, state,
// employee_count.
func readCompanyCSV(ctx context.Context, path string) ([]model.RawCompany, error) {
	rows, header, err := streamFile(ctx, path)
	if err != nil {
		return nil, err
	}

	idx := headerIndex(header)
	var raws []model.RawCompany
	for row := range rows {
		raw := model.RawCompany{
			Name:   cell(row, idx, "name"),
			Domain: cell(row, idx, "domain"),
			TaxID:  cell(row, idx, "tax_id"),
			City:   cell(row, idx, "city"),
			State:  cell(row, idx, "state"),
		}
		if v := cell(row, idx, "employee_count"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				raw.EmployeeCount = &n
			}
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// readPersonCSV parses an intake CSV with a header row into raw person
// records. Recognized columns: first_name, last_name, full_name, title,
// company_domain, company_tax_id, company_name.
func readPersonCSV(ctx context.Context, path string) ([]model.RawPerson, error) {
	rows, header, err := streamFile(ctx, path)
	if err != nil {
		return nil, err
	}

	idx := headerIndex(header)
	var raws []model.RawPerson
	for row := range rows {
		raws = append(raws, model.RawPerson{
			FirstName:     cell(row, idx, "first_name"),
			LastName:      cell(row, idx, "last_name"),
			FullName:      cell(row, idx, "full_name"),
			Title:         cell(row, idx, "title"),
			CompanyDomain: cell(row, idx, "company_domain"),
			CompanyTaxID:  cell(row, idx, "company_tax_id"),
			CompanyName:   cell(row, idx, "company_name"),
		})
	}
	return raws, nil
}

// streamFile opens the CSV and returns a drained-on-return row channel plus
// the header row. The file handle is closed by a goroutine once streaming
// finishes.
func streamFile(ctx context.Context, path string) (<-chan []string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "intake: open %s", path)
	}

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	// The header is always sent before the first data row, so once either
	// arrives (or the stream ends) we know whether the file had one.
	var header []string
	var pending [][]string
	select {
	case header = <-headerCh:
	case row, ok := <-rowCh:
		if !ok {
			f.Close()
			if err := <-errCh; err != nil {
				return nil, nil, eris.Wrapf(err, "intake: read %s", path)
			}
			return nil, nil, eris.Errorf("intake: %s is empty", path)
		}
		header = <-headerCh
		pending = append(pending, row)
	}

	out := make(chan []string, 64)
	go func() {
		defer close(out)
		defer f.Close()
		for _, row := range pending {
			out <- row
		}
		for row := range rowCh {
			out <- row
		}
		if err := <-errCh; err != nil {
			zap.L().Warn("csv stream error", zap.String("path", path), zap.Error(err))
		}
	}()
	return out, header, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func cell(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func init() {
	intakeCmd.AddCommand(intakeCompaniesCmd, intakePeopleCmd)
	rootCmd.AddCommand(intakeCmd)
}
