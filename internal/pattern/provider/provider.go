// Package provider defines the interface and registry for email-pattern
// discovery providers.
package provider

import (
	"context"
	"sort"
	"sync"
)

// Result is a usable pattern returned by a provider. A nil Result from
// Discover means the provider had nothing for this domain.
type Result struct {
	// Template uses {first}, {last}, {f}, {l} placeholders.
	Template string `json:"template"`
	// Provider is the provider identity for provenance.
	Provider string `json:"provider"`
	// RawConfidence is the provider's own 0-1 confidence, if offered.
	RawConfidence float64 `json:"raw_confidence,omitempty"`
	// CostUSD is the actual spend for this query.
	CostUSD float64 `json:"cost_usd,omitempty"`
}

// Provider is one email-pattern discovery source. Providers are grouped into
// ascending cost tiers; tier 0 is free scraping/lookup.
type Provider interface {
	// Name returns the provider identifier.
	Name() string
	// Tier returns the cost tier (0 = free, ascending).
	Tier() int
	// CostPerQuery estimates the spend for one discovery call.
	CostPerQuery() float64
	// Discover attempts to find the email pattern for a domain.
	// A (nil, nil) return means "no pattern from this provider."
	Discover(ctx context.Context, domain, companyName string) (*Result, error)
}

// Registry holds providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a provider. Registration order is the intra-tier call
// order of the waterfall.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Tiers returns providers grouped by ascending tier, preserving registration
// order within each tier.
func (r *Registry) Tiers() [][]Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byTier := make(map[int][]Provider)
	var tiers []int
	for _, p := range r.providers {
		if _, seen := byTier[p.Tier()]; !seen {
			tiers = append(tiers, p.Tier())
		}
		byTier[p.Tier()] = append(byTier[p.Tier()], p)
	}
	sort.Ints(tiers)

	out := make([][]Provider, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, byTier[t])
	}
	return out
}

// List returns all registered provider names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}
