package signal

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/model"
)

// defaultImpacts is the raw magnitude table per signal kind, used when the
// emitter does not set one explicitly.
var defaultImpacts = map[model.SignalKind]float64{
	model.SignalFilingFound:     5,
	model.SignalLargePlan:       4,
	model.SignalBrokerChange:    4,
	model.SignalSlotFilled:      3,
	model.SignalExecutiveJoined: 3,
	model.SignalExecutiveLeft:   2,
	model.SignalEmailVerified:   2,
	model.SignalContentMention:  1,
}

// DefaultImpact returns the standard impact magnitude for a signal kind.
func DefaultImpact(kind model.SignalKind) float64 {
	if v, ok := defaultImpacts[kind]; ok {
		return v
	}
	return 1
}

// defaultSourceWeights multiplies contributions by emitting source.
// Regulatory filings are authoritative, so they carry extra weight unless
// configuration says otherwise.
var defaultSourceWeights = map[string]float64{
	"filings": 1.25,
}

// Scorer recomputes intent scores from the live signal set. It never
// increments a stored score; every new signal triggers a full recompute so
// dedup and decay can never drift.
type Scorer struct {
	cfg     config.ScoreConfig
	nowFunc func() time.Time
}

// NewScorer creates a Scorer.
func NewScorer(cfg config.ScoreConfig) *Scorer {
	return &Scorer{cfg: cfg, nowFunc: time.Now}
}

// WithNow sets a fixed clock for testing.
func (s *Scorer) WithNow(now func() time.Time) *Scorer {
	s.nowFunc = now
	return s
}

func (s *Scorer) weightFor(source string) float64 {
	if w, ok := s.cfg.SourceWeights[source]; ok {
		return w
	}
	if w, ok := defaultSourceWeights[source]; ok {
		return w
	}
	return 1.0
}

// Recompute derives the current IntentScore for one company from its full
// signal set. Signals for other companies are ignored.
func (s *Scorer) Recompute(companyID string, signals []model.Signal) model.IntentScore {
	now := s.nowFunc().UTC()

	mine := make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.CompanyID == companyID {
			mine = append(mine, sig)
		}
	}
	deduped := Deduplicate(s.cfg, mine)

	var total float64
	contributing := make([]model.SignalContribution, 0, len(deduped))
	for _, sig := range deduped {
		impact := sig.Impact
		if impact == 0 {
			impact = DefaultImpact(sig.Kind)
		}
		decay := DecayFactor(s.cfg, now.Sub(sig.OccurredAt))
		if decay == 0 {
			continue
		}
		weight := s.weightFor(sig.Source)
		contribution := impact * decay * weight
		total += contribution
		contributing = append(contributing, model.SignalContribution{
			SignalID:   sig.ID,
			Kind:       sig.Kind,
			Impact:     impact,
			Decay:      decay,
			Weight:     weight,
			Contributn: contribution,
		})
	}

	score := total
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	tier := model.ScoreCold
	if score >= s.cfg.WarmThreshold {
		tier = model.ScoreWarm
	}

	zap.L().Debug("signal: recomputed score",
		zap.String("company_id", companyID),
		zap.Float64("score", score),
		zap.String("tier", string(tier)),
		zap.Int("signals", len(deduped)),
	)

	return model.IntentScore{
		CompanyID:      companyID,
		Score:          score,
		Tier:           tier,
		RecalculatedAt: now,
		Contributing:   contributing,
	}
}
