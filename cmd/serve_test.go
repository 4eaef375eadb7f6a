//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/domain"
	"github.com/sells-group/intent-core/internal/engine"
	"github.com/sells-group/intent-core/internal/match"
	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/monitoring"
	"github.com/sells-group/intent-core/internal/pattern"
	"github.com/sells-group/intent-core/internal/pattern/provider"
	"github.com/sells-group/intent-core/internal/resilience"
	"github.com/sells-group/intent-core/internal/signal"
	"github.com/sells-group/intent-core/internal/slot"
	"github.com/sells-group/intent-core/internal/store"
)

// staticLookuper resolves a fixed host set so router tests never touch DNS.
type staticLookuper struct {
	hosts map[string]bool
}

func (l *staticLookuper) LookupHost(ctx context.Context, host string) ([]string, error) {
	if l.hosts[host] {
		return []string{"192.0.2.10"}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func (l *staticLookuper) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	if l.hosts[name] {
		return []*net.MX{{Host: "mx." + name, Pref: 10}}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (l *staticLookuper) LookupNS(ctx context.Context, name string) ([]*net.NS, error) {
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (l *staticLookuper) LookupCNAME(ctx context.Context, host string) (string, error) {
	return "", &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func setupRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()

	cfg = &config.Config{
		Match:   config.MatchConfig{FuzzyThreshold: 0.85, CollisionMargin: 0.03, MaxCandidates: 5},
		Domain:  config.DomainConfig{TimeoutSecs: 2, RecheckHours: 720},
		Pattern: config.PatternConfig{MaxCostUSD: 1.0, ProviderTimeoutSecs: 5},
		Slot:    config.SlotConfig{ReplaceMargin: 10},
		Score:   config.ScoreConfig{WarmThreshold: 25, ShortWindowHours: 24, LongWindowDays: 365},
		Holding: config.HoldingConfig{MaxRetries: 3, BackoffMinutes: 30},
		Batch:   config.BatchConfig{Concurrency: 2},
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	eng := engine.New(engine.Options{
		Store:   st,
		Matcher: match.New(st, cfg.Match),
		Resolver: domain.NewResolver(&staticLookuper{
			hosts: map[string]bool{"acme.com": true, "www.acme.com": true},
		}, cfg.Domain),
		Waterfall: pattern.NewWaterfall(provider.NewRegistry(), cfg.Pattern,
			resilience.FromRetryConfig(1, 10, 100, 2.0, 0), resilience.DefaultCircuitBreakerConfig()),
		Verifier: pattern.NewVerifier(cfg.Pattern, nil, nil),
		Assigner: slot.NewAssigner(cfg.Slot),
		Scorer:   signal.NewScorer(cfg.Score),
		Score:    cfg.Score,
		Holding:  cfg.Holding,
	})

	return newRouter(st, eng, monitoring.NewMetrics()), st
}

func TestRouter_Healthz(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_IntakeCompanies_BadBody(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/intake/companies", bytes.NewBufferString("not json"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_IntakeCompanies_EmptyBatch(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/intake/companies", bytes.NewBufferString("[]"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_IntakeCompanies_CreatesIdentity(t *testing.T) {
	r, st := setupRouter(t)

	body, _ := json.Marshal([]model.RawCompany{
		{Name: "Acme Corp", Domain: "acme.com", City: "Springfield", State: "IL"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/intake/companies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var res engine.BatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Created)

	companies, err := st.ListCompanies(context.Background())
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "acme.com", companies[0].Domain)
}

func TestRouter_CompanyReadEndpoints(t *testing.T) {
	r, st := setupRouter(t)

	body, _ := json.Marshal([]model.RawCompany{
		{Name: "Acme Corp", Domain: "acme.com", City: "Springfield", State: "IL"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/intake/companies", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	companies, err := st.ListCompanies(context.Background())
	require.NoError(t, err)
	require.Len(t, companies, 1)
	id := companies[0].ID

	req = httptest.NewRequest(http.MethodGet, "/api/companies/"+id, nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// The pattern waterfall has no providers wired, so the fallback
	// template is stored unverified.
	req = httptest.NewRequest(http.MethodGet, "/api/companies/"+id+"/pattern", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	var pat model.EmailPattern
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pat))
	assert.Equal(t, "{first}.{last}", pat.Template)
}

func TestRouter_GetCompany_NotFound(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/companies/no-such-id", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_ListScores_Empty(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/scores?tier=warm", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_ListHolding(t *testing.T) {
	r, _ := setupRouter(t)

	// A person with no resolvable company anchor parks in holding.
	body, _ := json.Marshal([]model.RawPerson{
		{FullName: "Jane Doe", Title: "Chief People Officer", CompanyName: "Nowhere Inc"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/intake/people", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var res engine.BatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Held)

	req = httptest.NewRequest(http.MethodGet, "/api/holding?kind=person", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	var entries []model.HoldingEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, model.ReasonMissingAnchor, entries[0].Reason)
}
