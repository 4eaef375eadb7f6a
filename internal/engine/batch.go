package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/intent-core/internal/model"
)

// BatchResult tallies a batch run. Held records are not failures; they are
// parked with a typed reason and counted separately.
type BatchResult struct {
	Processed int `json:"processed"`
	Resolved  int `json:"resolved"`
	Created   int `json:"created"`
	Held      int `json:"held"`
	Failed    int `json:"failed"`
}

// ProcessCompanies runs raw company records through a bounded worker pool.
// Record-level failures are counted and logged; only a context failure
// aborts the batch.
func (e *Engine) ProcessCompanies(ctx context.Context, raws []model.RawCompany, concurrency int) (*BatchResult, error) {
	res := &BatchResult{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize(concurrency))

	for _, raw := range raws {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := e.ProcessCompany(ctx, raw)

			mu.Lock()
			defer mu.Unlock()
			res.Processed++
			if err != nil {
				res.Failed++
				zap.L().Error("engine: company record failed",
					zap.String("name", raw.Name),
					zap.Error(err),
				)
				return nil
			}
			res.tally(out.Status)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

// ProcessPeople runs raw person records through the same pool discipline.
func (e *Engine) ProcessPeople(ctx context.Context, raws []model.RawPerson, concurrency int) (*BatchResult, error) {
	res := &BatchResult{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize(concurrency))

	for _, raw := range raws {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := e.ProcessPerson(ctx, raw)

			mu.Lock()
			defer mu.Unlock()
			res.Processed++
			if err != nil {
				res.Failed++
				zap.L().Error("engine: person record failed",
					zap.String("name", raw.FullName),
					zap.Error(err),
				)
				return nil
			}
			res.tally(out.Status)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func (r *BatchResult) tally(s Status) {
	switch s {
	case StatusResolved:
		r.Resolved++
	case StatusCreated:
		r.Created++
	case StatusHeld:
		r.Held++
	}
}

func poolSize(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}
