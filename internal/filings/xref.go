package filings

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/signal"
	"github.com/sells-group/intent-core/internal/store"
)

// XrefResult summarizes one cross-reference pass.
type XrefResult struct {
	CompaniesChecked int `json:"companies_checked"`
	FilingsMatched   int `json:"filings_matched"`
	SignalsEmitted   int `json:"signals_emitted"`
}

// Xref links stored filings to companies by exact EIN and emits intent
// signals for the matches. Companies without a tax ID are never matched
// by name; a miss here stays a miss.
type Xref struct {
	store   store.Store
	filings config.FilingsConfig
	score   config.ScoreConfig
	nowFunc func() time.Time
}

// NewXref creates an Xref.
func NewXref(st store.Store, filings config.FilingsConfig, score config.ScoreConfig) *Xref {
	return &Xref{store: st, filings: filings, score: score, nowFunc: time.Now}
}

// WithNow overrides the clock, for tests.
func (x *Xref) WithNow(now func() time.Time) *Xref {
	x.nowFunc = now
	return x
}

// Run cross-references every company that carries a tax ID against the
// filing table. Each matched filing yields a filing_found signal; plans
// at or above the configured participant threshold add large_plan, and a
// broker name change between consecutive plan years adds broker_change.
// Signals route through the dedup key, so re-running is idempotent.
func (x *Xref) Run(ctx context.Context) (*XrefResult, error) {
	companies, err := x.store.ListCompanies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "filings: list companies")
	}

	log := zap.L().With(zap.String("component", "filings"))
	res := &XrefResult{}

	for _, c := range companies {
		if c.TaxID == "" {
			continue
		}
		res.CompaniesChecked++

		emitted, matched, err := x.RunCompany(ctx, &c)
		if err != nil {
			return nil, err
		}
		res.FilingsMatched += matched
		res.SignalsEmitted += emitted
	}

	log.Info("filing crossref complete",
		zap.Int("companies", res.CompaniesChecked),
		zap.Int("matched", res.FilingsMatched),
		zap.Int("signals", res.SignalsEmitted),
	)
	return res, nil
}

// RunCompany cross-references one company. It returns the number of
// signals stored and filings matched.
func (x *Xref) RunCompany(ctx context.Context, c *model.CompanyIdentity) (emitted, matched int, err error) {
	filings, err := x.store.GetFilingsByEIN(ctx, c.TaxID)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "filings: lookup EIN for company %s", c.ID)
	}
	if len(filings) == 0 {
		return 0, 0, nil
	}
	matched = len(filings)

	sort.Slice(filings, func(i, j int) bool { return filings[i].PlanYear < filings[j].PlanYear })

	for i, f := range filings {
		stored, err := x.emit(ctx, c.ID, model.SignalFilingFound, f.FiledAt)
		if err != nil {
			return emitted, matched, err
		}
		if stored {
			emitted++
		}

		if x.filings.LargePlanParticipants > 0 && f.Participants >= x.filings.LargePlanParticipants {
			stored, err := x.emit(ctx, c.ID, model.SignalLargePlan, f.FiledAt)
			if err != nil {
				return emitted, matched, err
			}
			if stored {
				emitted++
			}
		}

		if i > 0 && brokerChanged(filings[i-1], f) {
			stored, err := x.emit(ctx, c.ID, model.SignalBrokerChange, f.FiledAt)
			if err != nil {
				return emitted, matched, err
			}
			if stored {
				emitted++
			}
		}
	}
	return emitted, matched, nil
}

// brokerChanged reports whether two consecutive plan years name different
// brokers. A missing broker name on either side is not a change.
func brokerChanged(prev, cur model.Filing) bool {
	if prev.BrokerName == "" || cur.BrokerName == "" {
		return false
	}
	if cur.PlanYear != prev.PlanYear+1 {
		return false
	}
	return prev.BrokerName != cur.BrokerName
}

func (x *Xref) emit(ctx context.Context, companyID string, kind model.SignalKind, occurredAt time.Time) (bool, error) {
	s := &model.Signal{
		ID:         uuid.NewString(),
		CompanyID:  companyID,
		Kind:       kind,
		Source:     "filings",
		Impact:     signal.DefaultImpact(kind),
		OccurredAt: occurredAt.UTC(),
		DedupKey:   signal.DedupKey(x.score, kind, companyID, occurredAt),
		CreatedAt:  x.nowFunc().UTC(),
	}
	stored, err := x.store.AppendSignal(ctx, s)
	if err != nil {
		return false, eris.Wrapf(err, "filings: append %s signal", kind)
	}
	return stored, nil
}
