package main

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intent-core/internal/domain"
	"github.com/sells-group/intent-core/internal/engine"
	"github.com/sells-group/intent-core/internal/fetcher"
	"github.com/sells-group/intent-core/internal/match"
	"github.com/sells-group/intent-core/internal/pattern"
	"github.com/sells-group/intent-core/internal/pattern/provider"
	"github.com/sells-group/intent-core/internal/resilience"
	"github.com/sells-group/intent-core/internal/signal"
	"github.com/sells-group/intent-core/internal/slot"
	"github.com/sells-group/intent-core/internal/store"
	"github.com/sells-group/intent-core/pkg/deliverability"
	"github.com/sells-group/intent-core/pkg/enrich"
)

// openStore opens the configured backing store.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return store.NewSQLite(cfg.Store.DatabaseURL)
	}
}

// buildRegistry constructs the enrichment provider registry from config,
// with the provider policy file applied when configured.
func buildRegistry(policy *pattern.Policy) *provider.Registry {
	providerCfgs := cfg.Providers.Enrichment
	if policy != nil {
		providerCfgs = policy.Apply(providerCfgs)
	}

	registry := provider.NewRegistry()
	for _, p := range providerCfgs {
		var opts []enrich.Option
		if p.RatePerSec > 0 {
			opts = append(opts, enrich.WithRateLimit(p.RatePerSec))
		}
		registry.Register(enrich.NewClient(p.Name, p.Tier, p.CostPerQuery, p.BaseURL, p.APIKey, opts...))
	}
	return registry
}

// buildEngine wires the full resolution pipeline against the given store.
func buildEngine(st store.Store) (*engine.Engine, error) {
	retry := resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)

	breaker := resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs)

	var policy *pattern.Policy
	if cfg.Pattern.PolicyFile != "" {
		var err error
		if policy, err = pattern.LoadPolicy(cfg.Pattern.PolicyFile); err != nil {
			return nil, err
		}
	}

	patternCfg := cfg.Pattern
	if policy != nil && policy.MaxCostUSD > 0 {
		patternCfg.MaxCostUSD = policy.MaxCostUSD
	}

	var deliv deliverability.Client
	if cfg.Deliverability.BaseURL != "" {
		var opts []deliverability.Option
		if cfg.Deliverability.RatePerSec > 0 {
			opts = append(opts, deliverability.WithRateLimit(cfg.Deliverability.RatePerSec))
		}
		deliv = deliverability.NewClient(cfg.Deliverability.BaseURL, cfg.Deliverability.APIKey, opts...)
	}

	waterfall := pattern.NewWaterfall(buildRegistry(policy), patternCfg, retry, breaker)
	if policy != nil {
		waterfall.WithFallbacks(policy.Fallbacks)
	}

	return engine.New(engine.Options{
		Store:     st,
		Matcher:   match.New(st, cfg.Match),
		Resolver:  domain.NewResolver(net.DefaultResolver, cfg.Domain),
		Waterfall: waterfall,
		Verifier:  pattern.NewVerifier(patternCfg, deliv, nil),
		Assigner:  slot.NewAssigner(cfg.Slot),
		Scorer:    signal.NewScorer(cfg.Score),
		Score:     cfg.Score,
		Holding:   cfg.Holding,
	}), nil
}

// datasetFetcher picks a transport for the filings dataset URL.
func datasetFetcher(url string) (fetcher.Fetcher, error) {
	switch {
	case strings.HasPrefix(url, "ftp://"):
		return fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: 2 * time.Minute}), nil
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  "intent-core/1.0",
			Timeout:    5 * time.Minute,
			MaxRetries: cfg.Retry.MaxAttempts,
		}), nil
	default:
		return nil, eris.Errorf("env: unsupported dataset url scheme: %s", url)
	}
}
