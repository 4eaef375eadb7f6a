package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/store"
)

// Snapshot holds a point-in-time view of pipeline health.
type Snapshot struct {
	Companies     int `json:"companies"`
	WarmCompanies int `json:"warm_companies"`

	// Holding-queue depth, total and per reason.
	HoldingDepth     int                         `json:"holding_depth"`
	HoldingByReason  map[model.HoldingReason]int `json:"holding_by_reason,omitempty"`
	HoldingExhausted int                         `json:"holding_exhausted"`

	// NewestScoreAt is the most recent score recompute; zero when no
	// scores exist yet.
	NewestScoreAt time.Time `json:"newest_score_at,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers health snapshots from the store.
type Collector struct {
	store   store.Store
	nowFunc func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, nowFunc: time.Now}
}

// WithNow overrides the clock, for tests.
func (c *Collector) WithNow(now func() time.Time) *Collector {
	c.nowFunc = now
	return c
}

// Collect gathers one snapshot.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		HoldingByReason: make(map[model.HoldingReason]int),
		CollectedAt:     c.nowFunc().UTC(),
	}

	companies, err := c.store.ListCompanies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list companies")
	}
	snap.Companies = len(companies)

	warm, err := c.store.ListScores(ctx, store.ScoreFilter{Tier: model.ScoreWarm})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list warm scores")
	}
	snap.WarmCompanies = len(warm)

	all, err := c.store.ListScores(ctx, store.ScoreFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list scores")
	}
	for _, s := range all {
		if s.RecalculatedAt.After(snap.NewestScoreAt) {
			snap.NewestScoreAt = s.RecalculatedAt
		}
	}

	held, err := c.store.ListHolding(ctx, store.HoldingFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list holding queue")
	}
	snap.HoldingDepth = len(held)
	for _, e := range held {
		snap.HoldingByReason[e.Reason]++
		if !e.CanRetry() {
			snap.HoldingExhausted++
		}
	}

	return snap, nil
}
