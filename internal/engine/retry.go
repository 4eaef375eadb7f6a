package engine

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/resilience"
	"github.com/sells-group/intent-core/internal/store"
)

// RetryResult tallies one holding-queue retry pass.
type RetryResult struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Requeued  int `json:"requeued"`
}

// RetryHolding re-runs due holding entries through the pipeline. A record
// that resolves is removed from the queue; a record that parks again (or
// fails) has its retry budget charged and its next attempt pushed out.
// Entries past their budget are not listed as due and stay queued for
// manual review.
func (e *Engine) RetryHolding(ctx context.Context, limit int) (*RetryResult, error) {
	entries, err := e.store.ListHolding(ctx, store.HoldingFilter{
		DueBefore: e.nowFunc().UTC(),
		Limit:     limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "engine: list due holding entries")
	}

	res := &RetryResult{}
	for i := range entries {
		entry := &entries[i]
		res.Attempted++

		resolved, err := e.retryEntry(ctx, entry)
		if err != nil {
			return res, err
		}
		if resolved {
			if err := e.store.DeleteHolding(ctx, entry.ID); err != nil {
				return res, eris.Wrap(err, "engine: delete resolved holding entry")
			}
			res.Resolved++
			continue
		}

		resilience.RecordRetryFailure(entry, e.holding, e.nowFunc().UTC())
		if err := e.store.UpdateHolding(ctx, entry); err != nil {
			return res, eris.Wrap(err, "engine: update holding entry")
		}
		res.Requeued++
	}

	zap.L().Info("engine: holding retry pass",
		zap.Int("attempted", res.Attempted),
		zap.Int("resolved", res.Resolved),
		zap.Int("requeued", res.Requeued),
	)
	return res, nil
}

// retryEntry re-runs one held record. Reprocessing enqueues a fresh entry
// when the record parks again, so the original is deleted either way; the
// caller keeps it only when the rerun errored.
func (e *Engine) retryEntry(ctx context.Context, entry *model.HoldingEntry) (bool, error) {
	switch entry.Kind {
	case model.HoldingCompany:
		var raw model.RawCompany
		if err := json.Unmarshal(entry.Raw, &raw); err != nil {
			return false, eris.Wrapf(err, "engine: decode held company %s", entry.ID)
		}
		out, err := e.ProcessCompany(ctx, raw)
		if err != nil {
			return false, nil //nolint:nilerr // charged to the retry budget
		}
		if out.Status == StatusHeld {
			// A fresh entry was enqueued; drop this one in favor of it.
			if err := e.store.DeleteHolding(ctx, out.Holding.ID); err != nil {
				return false, eris.Wrap(err, "engine: drop duplicate holding entry")
			}
			return false, nil
		}
		return true, nil

	case model.HoldingPerson:
		var raw model.RawPerson
		if err := json.Unmarshal(entry.Raw, &raw); err != nil {
			return false, eris.Wrapf(err, "engine: decode held person %s", entry.ID)
		}
		out, err := e.ProcessPerson(ctx, raw)
		if err != nil {
			return false, nil //nolint:nilerr // charged to the retry budget
		}
		if out.Status == StatusHeld {
			if err := e.store.DeleteHolding(ctx, out.Holding.ID); err != nil {
				return false, eris.Wrap(err, "engine: drop duplicate holding entry")
			}
			return false, nil
		}
		return true, nil

	default:
		return false, eris.Errorf("engine: unknown holding kind %q", entry.Kind)
	}
}
