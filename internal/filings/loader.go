// Package filings ingests regulatory benefit-plan filing datasets and
// cross-references them against company identities by exact EIN.
package filings

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/fetcher"
	"github.com/sells-group/intent-core/internal/match"
	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/store"
)

// SyncResult summarizes one dataset ingest run.
type SyncResult struct {
	RowsRead    int `json:"rows_read"`
	RowsStored  int `json:"rows_stored"`
	RowsSkipped int `json:"rows_skipped"`
}

// Loader downloads a filing dataset and stores its rows. Rows with a
// malformed EIN are counted and skipped, never guessed at.
type Loader struct {
	store   store.Store
	fetcher fetcher.Fetcher
	cfg     config.FilingsConfig
	nowFunc func() time.Time
}

// NewLoader creates a Loader.
func NewLoader(st store.Store, f fetcher.Fetcher, cfg config.FilingsConfig) *Loader {
	return &Loader{store: st, fetcher: f, cfg: cfg, nowFunc: time.Now}
}

// Sync downloads the configured dataset and upserts every filing row.
// ZIP archives are searched for the first CSV member; bare CSV and XLSX
// URLs are parsed directly.
func (l *Loader) Sync(ctx context.Context) (*SyncResult, error) {
	if l.cfg.DatasetURL == "" {
		return nil, eris.New("filings: dataset URL not configured")
	}
	if err := os.MkdirAll(l.cfg.TempDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "filings: create temp dir")
	}

	log := zap.L().With(zap.String("component", "filings"))
	log.Info("downloading filing dataset", zap.String("url", l.cfg.DatasetURL))

	name := filepath.Base(strings.SplitN(l.cfg.DatasetURL, "?", 2)[0])
	localPath := filepath.Join(l.cfg.TempDir, name)
	if _, err := l.fetcher.DownloadToFile(ctx, l.cfg.DatasetURL, localPath); err != nil {
		return nil, eris.Wrap(err, "filings: download dataset")
	}
	defer os.Remove(localPath)

	switch {
	case strings.HasSuffix(strings.ToLower(name), ".zip"):
		return l.syncZip(ctx, localPath)
	case strings.HasSuffix(strings.ToLower(name), ".xlsx"):
		return l.syncXLSX(ctx, localPath)
	default:
		f, err := os.Open(localPath)
		if err != nil {
			return nil, eris.Wrap(err, "filings: open dataset")
		}
		defer f.Close()
		return l.syncCSV(ctx, f)
	}
}

func (l *Loader) syncZip(ctx context.Context, zipPath string) (*SyncResult, error) {
	extracted, err := fetcher.ExtractZIP(zipPath, l.cfg.TempDir)
	if err != nil {
		return nil, eris.Wrap(err, "filings: extract archive")
	}
	defer func() {
		for _, p := range extracted {
			_ = os.Remove(p)
		}
	}()

	for _, p := range extracted {
		if strings.HasSuffix(strings.ToLower(p), ".csv") {
			f, err := os.Open(p)
			if err != nil {
				return nil, eris.Wrapf(err, "filings: open %s", p)
			}
			defer f.Close()
			return l.syncCSV(ctx, f)
		}
	}
	return nil, eris.New("filings: no CSV member in archive")
}

func (l *Loader) syncXLSX(ctx context.Context, path string) (*SyncResult, error) {
	headerCh := make(chan []string, 1)
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: 1, HeaderCh: headerCh})
	if err != nil {
		return nil, eris.Wrap(err, "filings: read xlsx")
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.New("filings: xlsx has no header row")
	}

	return l.storeRows(ctx, header, sliceRows(rows))
}

func (l *Loader) syncCSV(ctx context.Context, r io.Reader) (*SyncResult, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var header []string
	select {
	case header = <-headerCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	res, err := l.storeRows(ctx, header, func(yield func([]string) bool) {
		for row := range rowCh {
			if !yield(row) {
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if streamErr := <-errCh; streamErr != nil {
		return nil, eris.Wrap(streamErr, "filings: stream csv")
	}
	return res, nil
}

func sliceRows(rows [][]string) func(yield func([]string) bool) {
	return func(yield func([]string) bool) {
		for _, row := range rows {
			if !yield(row) {
				return
			}
		}
	}
}

// columnIndex maps the dataset's header names to our fields. The public
// dataset ships UPPER_SNAKE headers; intake exports use lower snake. Both
// spellings are accepted.
func columnIndex(header []string) map[string]int {
	aliases := map[string]string{
		"spons_dfe_ein":             "ein",
		"ein":                       "ein",
		"sponsor_dfe_name":          "sponsor_name",
		"sponsor_name":              "sponsor_name",
		"spons_dfe_mail_us_city":    "sponsor_city",
		"sponsor_city":              "sponsor_city",
		"spons_dfe_mail_us_state":   "sponsor_state",
		"sponsor_state":             "sponsor_state",
		"plan_name":                 "plan_name",
		"tot_partcp_boy_cnt":        "participants",
		"participants":              "participants",
		"ins_broker_name":           "broker_name",
		"broker_name":               "broker_name",
		"plan_year":                 "plan_year",
		"form_plan_year_begin_date": "plan_year_begin",
		"date_received":             "filed_at",
		"filed_at":                  "filed_at",
	}

	idx := make(map[string]int)
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		if field, ok := aliases[key]; ok {
			if _, seen := idx[field]; !seen {
				idx[field] = i
			}
		}
	}
	return idx
}

func (l *Loader) storeRows(ctx context.Context, header []string, rows func(yield func([]string) bool)) (*SyncResult, error) {
	idx := columnIndex(header)
	if _, ok := idx["ein"]; !ok {
		return nil, eris.Errorf("filings: dataset header missing EIN column: %v", header)
	}

	log := zap.L().With(zap.String("component", "filings"))
	res := &SyncResult{}
	var loopErr error

	rows(func(row []string) bool {
		if err := ctx.Err(); err != nil {
			loopErr = err
			return false
		}
		res.RowsRead++

		f, ok := l.parseRow(idx, row)
		if !ok {
			res.RowsSkipped++
			return true
		}
		if err := l.store.UpsertFiling(ctx, f); err != nil {
			loopErr = err
			return false
		}
		res.RowsStored++
		return true
	})
	if loopErr != nil {
		return nil, eris.Wrap(loopErr, "filings: store rows")
	}

	log.Info("filing dataset stored",
		zap.Int("read", res.RowsRead),
		zap.Int("stored", res.RowsStored),
		zap.Int("skipped", res.RowsSkipped),
	)
	return res, nil
}

func (l *Loader) parseRow(idx map[string]int, row []string) (*model.Filing, bool) {
	field := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ein := match.NormalizeTaxID(field("ein"))
	if ein == "" {
		return nil, false
	}
	sponsor := field("sponsor_name")
	if sponsor == "" {
		return nil, false
	}

	participants, _ := strconv.Atoi(field("participants"))

	planYear, _ := strconv.Atoi(field("plan_year"))
	if planYear == 0 {
		if begin := field("plan_year_begin"); len(begin) >= 4 {
			planYear, _ = strconv.Atoi(begin[:4])
		}
	}
	if planYear == 0 {
		return nil, false
	}

	filedAt := l.nowFunc().UTC()
	if raw := field("filed_at"); raw != "" {
		for _, layout := range []string{"2006-01-02", "01/02/2006", time.RFC3339} {
			if t, err := time.Parse(layout, raw); err == nil {
				filedAt = t.UTC()
				break
			}
		}
	}

	return &model.Filing{
		EIN:          ein,
		SponsorName:  sponsor,
		SponsorCity:  field("sponsor_city"),
		SponsorState: field("sponsor_state"),
		PlanName:     field("plan_name"),
		Participants: participants,
		BrokerName:   field("broker_name"),
		PlanYear:     planYear,
		FiledAt:      filedAt,
	}, true
}

// FilingRowColumns is the column order produced by BulkRows for COPY-based
// ingest into Postgres.
var FilingRowColumns = []string{
	"id", "ein", "sponsor_name", "sponsor_city", "sponsor_state",
	"plan_name", "participants", "broker_name", "plan_year", "filed_at", "created_at",
}

// BulkRow flattens a filing for db.BulkUpsert.
func BulkRow(f *model.Filing) []any {
	return []any{
		f.ID, f.EIN, f.SponsorName, f.SponsorCity, f.SponsorState,
		f.PlanName, f.Participants, f.BrokerName, f.PlanYear, f.FiledAt, f.CreatedAt,
	}
}
