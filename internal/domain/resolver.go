// Package domain determines and validates a company's authoritative web domain.
package domain

import (
	"context"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/match"
	"github.com/sells-group/intent-core/internal/model"
)

// Lookuper is the DNS surface the resolver needs. *net.Resolver satisfies it.
type Lookuper interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// parkingSuffixes lists nameserver/CNAME suffixes of known domain-parking
// services. A domain pointed at one of these is classified parked.
var parkingSuffixes = []string{
	"sedoparking.com",
	"parkingcrew.net",
	"parklogic.com",
	"bodis.com",
	"above.com",
	"afternic.com",
	"dan.com",
	"uniregistrymarket.link",
}

// Resolver validates domain candidates via DNS and MX lookups.
type Resolver struct {
	lookup  Lookuper
	cfg     config.DomainConfig
	nowFunc func() time.Time
}

// NewResolver creates a Resolver backed by the given DNS lookuper.
func NewResolver(lookup Lookuper, cfg config.DomainConfig) *Resolver {
	return &Resolver{lookup: lookup, cfg: cfg, nowFunc: time.Now}
}

// WithNow sets a fixed clock for testing.
func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	r.nowFunc = now
	return r
}

// Stale reports whether a stored domain record is old enough to re-resolve.
// A non-positive recheck interval disables re-resolution.
func (r *Resolver) Stale(rec *model.DomainRecord) bool {
	if r.cfg.RecheckHours <= 0 {
		return false
	}
	return r.nowFunc().UTC().Sub(rec.CheckedAt) > time.Duration(r.cfg.RecheckHours)*time.Hour
}

// Resolve picks a domain candidate for the company (the canonical domain
// first, the intake-supplied one as fallback) and classifies it. Lookup
// failures become typed statuses, never errors: a dead domain is a result,
// not a fault.
func (r *Resolver) Resolve(ctx context.Context, company *model.CompanyIdentity, intakeDomain string) *model.DomainRecord {
	rec := &model.DomainRecord{
		CompanyID: company.ID,
		CheckedAt: r.nowFunc().UTC(),
	}

	candidate := company.Domain
	if candidate == "" {
		candidate = match.NormalizeDomain(intakeDomain)
	}
	if candidate == "" {
		rec.Status = model.DomainMissing
		return rec
	}
	rec.Domain = candidate

	timeout := time.Duration(r.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rec.Status = r.classify(lctx, candidate)

	zap.L().Debug("domain: resolved",
		zap.String("company_id", company.ID),
		zap.String("domain", candidate),
		zap.String("status", string(rec.Status)),
	)
	return rec
}

func (r *Resolver) classify(ctx context.Context, domain string) model.DomainStatus {
	addrs, err := r.lookup.LookupHost(ctx, domain)
	if err != nil || len(addrs) == 0 {
		return model.DomainUnreachable
	}

	if r.isParked(ctx, domain) {
		return model.DomainParked
	}

	mx, err := r.lookup.LookupMX(ctx, domain)
	if err != nil || len(mx) == 0 {
		return model.DomainValidNoMX
	}
	return model.DomainValid
}

// isParked checks NS and CNAME targets against the parking-service table.
func (r *Resolver) isParked(ctx context.Context, domain string) bool {
	suffixes := append([]string{}, parkingSuffixes...)
	suffixes = append(suffixes, r.cfg.ParkingSuffixes...)

	if nss, err := r.lookup.LookupNS(ctx, domain); err == nil {
		for _, ns := range nss {
			if matchesSuffix(ns.Host, suffixes) {
				return true
			}
		}
	}
	if cname, err := r.lookup.LookupCNAME(ctx, domain); err == nil && cname != "" {
		if matchesSuffix(cname, suffixes) {
			return true
		}
	}
	return false
}

func matchesSuffix(host string, suffixes []string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	for _, s := range suffixes {
		if h == s || strings.HasSuffix(h, "."+s) {
			return true
		}
	}
	return false
}
