package pattern

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/pattern/provider"
	"github.com/sells-group/intent-core/internal/resilience"
)

// Attempt records one provider call for provenance and cost audit.
type Attempt struct {
	Provider string  `json:"provider"`
	Tier     int     `json:"tier"`
	Template string  `json:"template,omitempty"`
	CostUSD  float64 `json:"cost_usd,omitempty"`
	Err      string  `json:"err,omitempty"`
	Skipped  string  `json:"skipped,omitempty"` // "budget" or "circuit_open"
}

// Discovery is the waterfall outcome for one company.
type Discovery struct {
	Pattern  *model.EmailPattern `json:"pattern,omitempty"`
	Fallback bool                `json:"fallback"`
	Attempts []Attempt           `json:"attempts,omitempty"`
	CostUSD  float64             `json:"cost_usd"`
}

// Waterfall tries pattern providers in ascending cost tiers, stopping at the
// first usable pattern. Advancing to a higher tier only happens when the
// entire lower tier is exhausted. The stop-at-first-success rule is the
// cost-control policy, not an optimization.
type Waterfall struct {
	registry  *provider.Registry
	cfg       config.PatternConfig
	retry     resilience.RetryConfig
	breakers  *resilience.ServiceBreakers
	fallbacks []string

	nowFunc func() time.Time
}

// NewWaterfall creates a Waterfall over the given provider registry.
func NewWaterfall(registry *provider.Registry, cfg config.PatternConfig, retry resilience.RetryConfig, breaker resilience.CircuitBreakerConfig) *Waterfall {
	return &Waterfall{
		registry:  registry,
		cfg:       cfg,
		retry:     retry,
		breakers:  resilience.NewServiceBreakers(breaker),
		fallbacks: CommonTemplates,
		nowFunc:   time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (w *Waterfall) WithNow(now func() time.Time) *Waterfall {
	w.nowFunc = now
	return w
}

// WithFallbacks overrides the built-in fallback template list, typically
// from a policy file.
func (w *Waterfall) WithFallbacks(templates []string) *Waterfall {
	if len(templates) > 0 {
		w.fallbacks = templates
	}
	return w
}

// Discover runs the waterfall for a company whose domain has been resolved.
// Provider failures and timeouts advance the waterfall; they are never
// returned as errors. Context cancellation aborts mid-tier and discards
// partial results.
func (w *Waterfall) Discover(ctx context.Context, company *model.CompanyIdentity, dom *model.DomainRecord) (*Discovery, error) {
	if dom == nil || dom.Status == model.DomainMissing || dom.Domain == "" {
		return nil, eris.New("pattern: domain is missing")
	}

	disc := &Discovery{}
	spent := 0.0

	for _, tier := range w.registry.Tiers() {
		for _, p := range tier {
			if err := ctx.Err(); err != nil {
				// Aborted mid-tier: discard partials.
				return nil, eris.Wrap(err, "pattern: discovery cancelled")
			}

			attempt := Attempt{Provider: p.Name(), Tier: p.Tier()}

			if cost := p.CostPerQuery(); w.cfg.MaxCostUSD > 0 && spent+cost > w.cfg.MaxCostUSD {
				attempt.Skipped = "budget"
				disc.Attempts = append(disc.Attempts, attempt)
				zap.L().Info("pattern: budget exhausted, skipping provider",
					zap.String("provider", p.Name()),
					zap.Float64("spent", spent),
					zap.Float64("budget", w.cfg.MaxCostUSD),
				)
				continue
			}

			res, err := w.callProvider(ctx, p, dom.Domain, company.Name)
			if err != nil {
				if eris.Is(err, resilience.ErrCircuitOpen) {
					attempt.Skipped = "circuit_open"
				} else {
					attempt.Err = err.Error()
				}
				disc.Attempts = append(disc.Attempts, attempt)
				zap.L().Warn("pattern: provider failed, advancing",
					zap.String("provider", p.Name()),
					zap.Int("tier", p.Tier()),
					zap.Error(err),
				)
				continue
			}

			if res == nil || !ValidTemplate(res.Template) {
				// A completed query bills even when the provider has
				// nothing for the domain.
				spent += p.CostPerQuery()
				attempt.CostUSD = p.CostPerQuery()
				disc.Attempts = append(disc.Attempts, attempt)
				continue
			}

			spent += res.CostUSD
			attempt.Template = res.Template
			attempt.CostUSD = res.CostUSD
			disc.Attempts = append(disc.Attempts, attempt)
			disc.CostUSD = spent

			// First usable pattern wins: no higher-cost provider is called.
			disc.Pattern = &model.EmailPattern{
				CompanyID:    company.ID,
				Template:     res.Template,
				Source:       p.Name(),
				Confidence:   model.TierUnverified,
				DiscoveredAt: w.nowFunc().UTC(),
			}
			zap.L().Info("pattern: discovered",
				zap.String("company_id", company.ID),
				zap.String("provider", p.Name()),
				zap.String("template", res.Template),
			)
			return disc, nil
		}
	}

	// All tiers exhausted: fall back to the most common pattern, marked as a
	// low-confidence suggestion rather than verified output.
	disc.Fallback = true
	disc.CostUSD = spent
	disc.Pattern = &model.EmailPattern{
		CompanyID:    company.ID,
		Template:     w.fallbacks[0],
		Source:       "fallback",
		Confidence:   model.TierUnverified,
		DiscoveredAt: w.nowFunc().UTC(),
	}
	zap.L().Info("pattern: all tiers exhausted, using fallback",
		zap.String("company_id", company.ID),
		zap.String("template", disc.Pattern.Template),
	)
	return disc, nil
}

// callProvider wraps one discovery call in a timeout, bounded retry, and the
// provider's circuit breaker.
func (w *Waterfall) callProvider(ctx context.Context, p provider.Provider, domain, name string) (*provider.Result, error) {
	timeout := time.Duration(w.cfg.ProviderTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	retry := w.retry
	retry.OnRetry = resilience.RetryLogger(p.Name(), "discover")

	cb := w.breakers.Get(p.Name())
	return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*provider.Result, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*provider.Result, error) {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return p.Discover(cctx, domain, name)
		})
	})
}
