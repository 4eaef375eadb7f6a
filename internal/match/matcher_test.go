package match

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/model"
)

// fakeStore is an in-memory CompanyStore for matcher tests.
type fakeStore struct {
	companies []model.CompanyIdentity
}

func (f *fakeStore) GetCompanyByDomain(_ context.Context, domain string) (*model.CompanyIdentity, error) {
	for i := range f.companies {
		if f.companies[i].Domain == domain {
			return &f.companies[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetCompanyByNormalizedName(_ context.Context, name string) (*model.CompanyIdentity, error) {
	for i := range f.companies {
		if f.companies[i].NormalizedName == name && !f.companies[i].IsMerged() {
			return &f.companies[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetCompany(_ context.Context, id string) (*model.CompanyIdentity, error) {
	for i := range f.companies {
		if f.companies[i].ID == id {
			return &f.companies[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListCompanies(_ context.Context) ([]model.CompanyIdentity, error) {
	return f.companies, nil
}

func testCfg() config.MatchConfig {
	return config.MatchConfig{
		FuzzyThreshold:  0.85,
		CollisionMargin: 0.03,
		MaxCandidates:   10,
	}
}

func company(id, name, domain, city string) model.CompanyIdentity {
	return model.CompanyIdentity{
		ID:             id,
		Name:           name,
		NormalizedName: NormalizeName(name),
		Domain:         domain,
		City:           city,
	}
}

func TestMatch_DomainExact(t *testing.T) {
	store := &fakeStore{companies: []model.CompanyIdentity{
		company("c1", "Acme Inc", "acme.com", "Austin"),
	}}
	m := New(store, testCfg())

	res, err := m.Match(context.Background(), model.RawCompany{
		Name:   "Totally Different Name",
		Domain: "https://www.acme.com/",
	})
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "c1", res.Company.ID)
	assert.Equal(t, TierDomainExact, res.Tier)
	assert.Equal(t, 1.00, res.Score)
}

func TestMatch_NameExact(t *testing.T) {
	store := &fakeStore{companies: []model.CompanyIdentity{
		company("c1", "Acme Benefits LLC", "acme.com", "Austin"),
	}}
	m := New(store, testCfg())

	res, err := m.Match(context.Background(), model.RawCompany{Name: "Acme Benefits, Inc."})
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, TierNameExact, res.Tier)
	assert.Equal(t, 0.95, res.Score)
}

func TestMatch_FuzzyWithCityGuardrail(t *testing.T) {
	store := &fakeStore{companies: []model.CompanyIdentity{
		company("c1", "Acme Benefit Group", "", "Austin"),
	}}
	m := New(store, testCfg())

	res, err := m.Match(context.Background(), model.RawCompany{
		Name: "Acme Benefits Group",
		City: "austin",
	})
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, TierNameFuzzy, res.Tier)
	assert.GreaterOrEqual(t, res.Score, 0.85)
	assert.LessOrEqual(t, res.Score, 0.92)
}

func TestMatch_FuzzyBlockedByCityMismatch(t *testing.T) {
	store := &fakeStore{companies: []model.CompanyIdentity{
		company("c1", "Acme Benefit Group", "", "Denver"),
	}}
	m := New(store, testCfg())

	res, err := m.Match(context.Background(), model.RawCompany{
		Name: "Acme Benefits Group",
		City: "Austin",
	})
	require.NoError(t, err)
	assert.False(t, res.Matched())
	assert.Equal(t, model.ReasonNoMatch, res.Reason)
}

func TestMatch_FuzzyBlockedWithoutCity(t *testing.T) {
	// No intake city means the guardrail cannot be satisfied.
	store := &fakeStore{companies: []model.CompanyIdentity{
		company("c1", "Acme Benefit Group", "", "Austin"),
	}}
	m := New(store, testCfg())

	res, err := m.Match(context.Background(), model.RawCompany{Name: "Acme Benefits Group"})
	require.NoError(t, err)
	assert.False(t, res.Matched())
	assert.Equal(t, model.ReasonNoMatch, res.Reason)
}

func TestMatch_CollisionRoutesToHolding(t *testing.T) {
	// Two near-identical candidates in the same city: scores tie within
	// the margin, so the matcher must not pick one.
	store := &fakeStore{companies: []model.CompanyIdentity{
		company("c1", "Summit Benefit Group", "", "Austin"),
		company("c2", "Summit Benefits Group", "", "Austin"),
	}}
	m := New(store, testCfg())

	res, err := m.Match(context.Background(), model.RawCompany{
		Name: "Summit Benfits Group",
		City: "Austin",
	})
	require.NoError(t, err)
	assert.False(t, res.Matched())
	assert.Equal(t, model.ReasonAmbiguousMatch, res.Reason)
	assert.Len(t, res.Candidates, 2)
	assert.True(t, strings.Contains(res.Detail, "within margin"))
}

func TestMatch_MissingName(t *testing.T) {
	m := New(&fakeStore{}, testCfg())

	res, err := m.Match(context.Background(), model.RawCompany{Domain: "unknown.com"})
	require.NoError(t, err)
	assert.False(t, res.Matched())
	assert.Equal(t, model.ReasonMissingName, res.Reason)
}

func TestMatch_NoMatchNeverCreates(t *testing.T) {
	store := &fakeStore{companies: []model.CompanyIdentity{
		company("c1", "Acme Inc", "acme.com", "Austin"),
	}}
	m := New(store, testCfg())

	res, err := m.Match(context.Background(), model.RawCompany{
		Name: "Zenith Robotics",
		City: "Austin",
	})
	require.NoError(t, err)
	assert.False(t, res.Matched())
	assert.Equal(t, model.ReasonNoMatch, res.Reason)
	// The store is untouched: no identity was auto-created.
	assert.Len(t, store.companies, 1)
}

func TestMatch_Idempotent(t *testing.T) {
	store := &fakeStore{companies: []model.CompanyIdentity{
		company("c1", "Acme Benefit Group", "", "Austin"),
		company("c2", "Zenith Robotics", "zenith.io", "Denver"),
	}}
	m := New(store, testCfg())
	raw := model.RawCompany{Name: "Acme Benefits Group", City: "Austin"}

	first, err := m.Match(context.Background(), raw)
	require.NoError(t, err)
	second, err := m.Match(context.Background(), raw)
	require.NoError(t, err)

	require.True(t, first.Matched())
	require.True(t, second.Matched())
	assert.Equal(t, first.Company.ID, second.Company.ID)
	assert.Equal(t, first.Tier, second.Tier)
	assert.Equal(t, first.Score, second.Score)
}

func TestMatch_FollowsMergePointer(t *testing.T) {
	merged := company("c1", "Acme Inc", "acme.com", "Austin")
	merged.MergedInto = "c2"
	survivor := company("c2", "Acme Holdings", "acmeholdings.com", "Austin")

	store := &fakeStore{companies: []model.CompanyIdentity{merged, survivor}}
	m := New(store, testCfg())

	res, err := m.Match(context.Background(), model.RawCompany{Name: "x", Domain: "acme.com"})
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "c2", res.Company.ID)
}
