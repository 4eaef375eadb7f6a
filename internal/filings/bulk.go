package filings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intent-core/internal/db"
	"github.com/sells-group/intent-core/internal/model"
)

// bulkBatchSize bounds how many filings ride one COPY round trip.
const bulkBatchSize = 5000

// BulkUpsertFilings loads filings through a COPY-backed temp-table merge.
// The annual dataset refresh re-delivers most of last year's rows, so the
// merge keys on (ein, plan_year). Postgres only.
func BulkUpsertFilings(ctx context.Context, pool db.Pool, filings []model.Filing) (int64, error) {
	cfg := db.UpsertConfig{
		Table:        "filings",
		Columns:      FilingRowColumns,
		ConflictKeys: []string{"ein", "plan_year"},
		UpdateCols: []string{
			"sponsor_name", "sponsor_city", "sponsor_state",
			"plan_name", "participants", "broker_name", "filed_at",
		},
	}

	var total int64
	for start := 0; start < len(filings); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(filings) {
			end = len(filings)
		}

		rows := make([][]any, 0, end-start)
		for i := start; i < end; i++ {
			f := filings[i]
			if f.ID == "" {
				f.ID = uuid.NewString()
			}
			if f.CreatedAt.IsZero() {
				f.CreatedAt = time.Now().UTC()
			}
			rows = append(rows, BulkRow(&f))
		}

		n, err := db.BulkUpsert(ctx, pool, cfg, rows)
		if err != nil {
			return total, eris.Wrap(err, "filings: bulk upsert batch")
		}
		total += n
	}
	return total, nil
}
