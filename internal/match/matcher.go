package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/model"
)

// Tier identifies which waterfall pass produced a match.
type Tier string

const (
	TierDomainExact Tier = "domain_exact"
	TierNameExact   Tier = "name_exact"
	TierNameFuzzy   Tier = "name_fuzzy"
	TierNone        Tier = "none"
)

// Fixed scores for the exact tiers.
const (
	scoreDomainExact = 1.00
	scoreNameExact   = 0.95
)

// CompanyStore is the read surface the matcher needs.
type CompanyStore interface {
	GetCompanyByDomain(ctx context.Context, domain string) (*model.CompanyIdentity, error)
	GetCompanyByNormalizedName(ctx context.Context, name string) (*model.CompanyIdentity, error)
	GetCompany(ctx context.Context, id string) (*model.CompanyIdentity, error)
	ListCompanies(ctx context.Context) ([]model.CompanyIdentity, error)
}

// Candidate is one scored company considered during matching.
type Candidate struct {
	Company model.CompanyIdentity `json:"company"`
	Score   float64               `json:"score"`
	Tier    Tier                  `json:"tier"`
}

// Result is the outcome of one match attempt. When Company is nil the
// Reason explains why the record goes to holding instead.
type Result struct {
	Company    *model.CompanyIdentity `json:"company,omitempty"`
	Tier       Tier                   `json:"tier"`
	Score      float64                `json:"score"`
	Candidates []Candidate            `json:"candidates,omitempty"`
	Reason     model.HoldingReason    `json:"reason,omitempty"`
	Detail     string                 `json:"detail,omitempty"`
}

// Matched reports whether the record was bound to an identity.
func (r *Result) Matched() bool {
	return r.Company != nil
}

// Matcher resolves raw company records through a strictly ordered waterfall:
// domain exact, normalized-name exact, then city-gated fuzzy. First success
// wins; ambiguity is never auto-resolved.
type Matcher struct {
	store CompanyStore
	cfg   config.MatchConfig
}

// New creates a Matcher.
func New(store CompanyStore, cfg config.MatchConfig) *Matcher {
	return &Matcher{store: store, cfg: cfg}
}

// Match runs the waterfall for one raw record. The result is a pure function
// of the store contents, so matching the same record twice yields the same
// outcome.
func (m *Matcher) Match(ctx context.Context, raw model.RawCompany) (*Result, error) {
	// Pass 1: exact domain match (score 1.00).
	if domain := NormalizeDomain(raw.Domain); domain != "" {
		c, err := m.store.GetCompanyByDomain(ctx, domain)
		if err != nil {
			return nil, eris.Wrap(err, "match: lookup by domain")
		}
		if c != nil {
			c, err = m.followMerge(ctx, c)
			if err != nil {
				return nil, err
			}
			zap.L().Debug("match: domain exact",
				zap.String("domain", domain),
				zap.String("company_id", c.ID),
			)
			return &Result{Company: c, Tier: TierDomainExact, Score: scoreDomainExact}, nil
		}
	}

	normName := NormalizeName(raw.Name)
	if normName == "" {
		return &Result{Tier: TierNone, Reason: model.ReasonMissingName}, nil
	}

	// Pass 2: exact normalized-name match (score 0.95).
	c, err := m.store.GetCompanyByNormalizedName(ctx, normName)
	if err != nil {
		return nil, eris.Wrap(err, "match: lookup by name")
	}
	if c != nil {
		c, err = m.followMerge(ctx, c)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("match: name exact",
			zap.String("name", normName),
			zap.String("company_id", c.ID),
		)
		return &Result{Company: c, Tier: TierNameExact, Score: scoreNameExact}, nil
	}

	// Pass 3: fuzzy name match, gated by the city guardrail.
	candidates, err := m.fuzzyCandidates(ctx, normName, raw.City)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return &Result{Tier: TierNone, Reason: model.ReasonNoMatch}, nil
	}

	// Collision policy: if the top two scores are within the margin, the
	// evidence is ambiguous: flag for adjudication instead of picking.
	if len(candidates) >= 2 && candidates[0].Score-candidates[1].Score < m.cfg.CollisionMargin {
		detail := fmt.Sprintf("candidates %s (%.3f) and %s (%.3f) within margin %.3f",
			candidates[0].Company.ID, candidates[0].Score,
			candidates[1].Company.ID, candidates[1].Score,
			m.cfg.CollisionMargin,
		)
		zap.L().Info("match: ambiguous collision",
			zap.String("name", normName),
			zap.String("detail", detail),
		)
		return &Result{
			Tier:       TierNone,
			Candidates: candidates,
			Reason:     model.ReasonAmbiguousMatch,
			Detail:     detail,
		}, nil
	}

	winner := candidates[0]
	co, err := m.followMerge(ctx, &winner.Company)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("match: fuzzy",
		zap.String("name", normName),
		zap.String("company_id", co.ID),
		zap.Float64("score", winner.Score),
	)
	return &Result{
		Company:    co,
		Tier:       TierNameFuzzy,
		Score:      winner.Score,
		Candidates: candidates,
	}, nil
}

// fuzzyCandidates scores all non-merged identities against the normalized
// name. A candidate is eligible only when the similarity clears the
// threshold and its registered city matches the intake city. The guardrail
// that prevents cross-market false merges.
func (m *Matcher) fuzzyCandidates(ctx context.Context, normName, city string) ([]Candidate, error) {
	companies, err := m.store.ListCompanies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "match: list companies")
	}

	var candidates []Candidate
	for _, c := range companies {
		if c.IsMerged() {
			continue
		}
		if city == "" || !strings.EqualFold(c.City, city) {
			continue
		}
		sim := Similarity(normName, c.NormalizedName)
		if sim < m.cfg.FuzzyThreshold {
			continue
		}
		candidates = append(candidates, Candidate{
			Company: c,
			Score:   FuzzyScore(sim),
			Tier:    TierNameFuzzy,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		// Stable tie-break on ID keeps matching deterministic.
		return candidates[i].Company.ID < candidates[j].Company.ID
	})

	if max := m.cfg.MaxCandidates; max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates, nil
}

// followMerge resolves a merged identity to its canonical survivor.
func (m *Matcher) followMerge(ctx context.Context, c *model.CompanyIdentity) (*model.CompanyIdentity, error) {
	for hops := 0; c.IsMerged() && hops < 5; hops++ {
		next, err := m.store.GetCompany(ctx, c.MergedInto)
		if err != nil {
			return nil, eris.Wrapf(err, "match: follow merge %s", c.MergedInto)
		}
		if next == nil {
			break
		}
		c = next
	}
	return c, nil
}
