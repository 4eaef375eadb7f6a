package engine

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/domain"
	"github.com/sells-group/intent-core/internal/match"
	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/pattern"
	"github.com/sells-group/intent-core/internal/pattern/provider"
	"github.com/sells-group/intent-core/internal/resilience"
	"github.com/sells-group/intent-core/internal/signal"
	"github.com/sells-group/intent-core/internal/slot"
	"github.com/sells-group/intent-core/internal/store"
)

// testNow is safely ahead of wall-clock time so freshly parked holding
// entries count as due when the engine lists them against this clock.
var testNow = time.Date(2031, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeLookuper returns canned DNS answers keyed by domain.
type fakeLookuper struct {
	hosts map[string][]string
	mx    map[string][]*net.MX
}

func (f *fakeLookuper) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := f.hosts[host]; ok {
		return addrs, nil
	}
	return nil, eris.Errorf("lookup %s: no such host", host)
}

func (f *fakeLookuper) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if mx, ok := f.mx[name]; ok {
		return mx, nil
	}
	return nil, eris.Errorf("lookup %s: no MX records", name)
}

func (f *fakeLookuper) LookupNS(_ context.Context, _ string) ([]*net.NS, error) {
	return nil, eris.New("no NS records")
}

func (f *fakeLookuper) LookupCNAME(_ context.Context, _ string) (string, error) {
	return "", nil
}

// fakeProvider returns a canned pattern and counts calls.
type fakeProvider struct {
	name   string
	tier   int
	result *provider.Result
	calls  int
}

func (f *fakeProvider) Name() string          { return f.name }
func (f *fakeProvider) Tier() int             { return f.tier }
func (f *fakeProvider) CostPerQuery() float64 { return 0 }

func (f *fakeProvider) Discover(_ context.Context, _, _ string) (*provider.Result, error) {
	f.calls++
	if f.result == nil {
		return nil, nil
	}
	return f.result, nil
}

type testHarness struct {
	engine   *Engine
	store    *store.SQLiteStore
	provider *fakeProvider
}

func newTestEngine(t *testing.T) *testHarness {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	lookup := &fakeLookuper{
		hosts: map[string][]string{"acme.com": {"93.184.216.34"}},
		mx:    map[string][]*net.MX{"acme.com": {{Host: "mx.acme.com", Pref: 10}}},
	}

	p := &fakeProvider{name: "scrape", tier: 0, result: &provider.Result{Template: "{first}.{last}", Provider: "scrape"}}
	registry := provider.NewRegistry()
	registry.Register(p)

	scoreCfg := config.ScoreConfig{WarmThreshold: 25, ShortWindowHours: 24, LongWindowDays: 365}
	now := func() time.Time { return testNow }

	eng := New(Options{
		Store:    st,
		Matcher:  match.New(st, config.MatchConfig{FuzzyThreshold: 0.85, CollisionMargin: 0.03, MaxCandidates: 5}),
		Resolver: domain.NewResolver(lookup, config.DomainConfig{TimeoutSecs: 2, RecheckHours: 24}).WithNow(now),
		Waterfall: pattern.NewWaterfall(registry, config.PatternConfig{ProviderTimeoutSecs: 2},
			resilience.RetryConfig{MaxAttempts: 1}, resilience.DefaultCircuitBreakerConfig()).WithNow(now),
		Verifier: pattern.NewVerifier(config.PatternConfig{}, nil, nil),
		Assigner: slot.NewAssigner(config.SlotConfig{ReplaceMargin: 10}).WithNow(now),
		Scorer:   signal.NewScorer(scoreCfg).WithNow(now),
		Score:    scoreCfg,
		Holding:  config.HoldingConfig{MaxRetries: 3, BackoffMinutes: 60},
	}).WithNow(now)

	return &testHarness{engine: eng, store: st, provider: p}
}

func TestProcessCompany_CreatesIdentityOnCleanMiss(t *testing.T) {
	h := newTestEngine(t)

	out, err := h.engine.ProcessCompany(context.Background(), model.RawCompany{
		Name: "Acme Inc", Domain: "acme.com", City: "Springfield",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, out.Status)
	require.NotNil(t, out.Company)
	assert.NotEmpty(t, out.Company.ID)

	// Domain resolved and committed.
	require.NotNil(t, out.Domain)
	assert.Equal(t, model.DomainValid, out.Domain.Status)

	// Pattern discovered through tier 0.
	require.NotNil(t, out.Pattern)
	assert.Equal(t, "{first}.{last}", out.Pattern.Template)
	assert.Equal(t, 1, h.provider.calls)

	stored, err := h.store.CurrentEmailPattern(context.Background(), out.Company.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestProcessCompany_SecondPassResolvesWithoutRediscovery(t *testing.T) {
	h := newTestEngine(t)
	raw := model.RawCompany{Name: "Acme Inc", Domain: "acme.com"}

	first, err := h.engine.ProcessCompany(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, StatusCreated, first.Status)

	second, err := h.engine.ProcessCompany(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, StatusResolved, second.Status)
	assert.Equal(t, match.TierDomainExact, second.MatchTier)
	assert.Equal(t, first.Company.ID, second.Company.ID)

	// Committed stage results are reused, never re-derived.
	assert.Equal(t, 1, h.provider.calls)
}

func TestProcessCompany_ConcurrentIntakeOfSameNewCompany(t *testing.T) {
	h := newTestEngine(t)
	raw := model.RawCompany{Name: "Acme Inc", Domain: "acme.com"}

	const workers = 8
	outcomes := make([]*CompanyOutcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = h.engine.ProcessCompany(context.Background(), raw)
		}()
	}
	wg.Wait()

	// Every worker must end on the same identity: one creates it, the rest
	// bind it. Racing past the matcher into CreateCompany would surface here
	// as a unique index violation on the normalized name.
	created := 0
	for i := range workers {
		require.NoError(t, errs[i], "worker %d", i)
		require.NotNil(t, outcomes[i].Company, "worker %d", i)
		assert.Equal(t, outcomes[0].Company.ID, outcomes[i].Company.ID, "worker %d", i)
		if outcomes[i].Status == StatusCreated {
			created++
		} else {
			assert.Equal(t, StatusResolved, outcomes[i].Status, "worker %d", i)
		}
	}
	assert.Equal(t, 1, created)
}

func TestProcessCompany_UnreachableDomainSkipsPattern(t *testing.T) {
	h := newTestEngine(t)

	out, err := h.engine.ProcessCompany(context.Background(), model.RawCompany{
		Name: "Ghost LLC", Domain: "ghost.invalid",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, out.Status)
	require.NotNil(t, out.Domain)
	assert.Equal(t, model.DomainUnreachable, out.Domain.Status)
	assert.Nil(t, out.Pattern)
	assert.Equal(t, 0, h.provider.calls)
}

func TestProcessCompany_AmbiguousGoesToHolding(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"northside consulting", "northsides consulting"} {
		require.NoError(t, h.store.CreateCompany(ctx, &model.CompanyIdentity{
			Name: name, NormalizedName: match.NormalizeName(name), City: "Springfield",
		}))
	}

	// One edit from each seed: the top two scores land inside the margin.
	out, err := h.engine.ProcessCompany(ctx, model.RawCompany{
		Name: "Nortside Consulting", City: "Springfield",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusHeld, out.Status)
	require.NotNil(t, out.Holding)
	assert.Equal(t, model.ReasonAmbiguousMatch, out.Holding.Reason)

	held, err := h.store.ListHolding(ctx, store.HoldingFilter{Kind: model.HoldingCompany})
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestProcessPerson_FillsSlotAndEmitsSignal(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	co, err := h.engine.ProcessCompany(ctx, model.RawCompany{Name: "Acme Inc", Domain: "acme.com"})
	require.NoError(t, err)

	out, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Jane", LastName: "Doe", Title: "Chief People Officer",
		CompanyDomain: "acme.com",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusResolved, out.Status)
	require.NotNil(t, out.Decision)
	assert.Equal(t, slot.ActionFilled, out.Decision.Action)
	assert.Equal(t, model.SlotHRExecutive, out.Decision.Slot)

	// Email rendered from the discovered pattern.
	assert.Equal(t, "jane.doe@acme.com", out.Person.Email)

	s, err := h.store.GetSlot(ctx, co.Company.ID, model.SlotHRExecutive)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, out.Person.ID, s.PersonID)

	signals, err := h.store.ListSignals(ctx, co.Company.ID)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, model.SignalSlotFilled, signals[0].Kind)

	score, err := h.store.GetScore(ctx, co.Company.ID)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Greater(t, score.Score, 0.0)
}

func TestProcessPerson_OutrankedGoesToHolding(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	_, err := h.engine.ProcessCompany(ctx, model.RawCompany{Name: "Acme Inc", Domain: "acme.com"})
	require.NoError(t, err)

	first, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Jane", LastName: "Doe", Title: "HR Director", CompanyDomain: "acme.com",
	})
	require.NoError(t, err)
	require.Equal(t, StatusResolved, first.Status)

	// Rank 80 vs incumbent 85: within the margin, incumbent stays.
	second, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Bob", LastName: "Roe", Title: "HR Manager", CompanyDomain: "acme.com",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusHeld, second.Status)
	assert.Equal(t, slot.ActionRetained, second.Decision.Action)
	require.NotNil(t, second.Holding)
	assert.Equal(t, model.ReasonOutranked, second.Holding.Reason)

	// The loser's person row is still kept.
	p, err := h.store.GetPerson(ctx, second.Person.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestProcessPerson_ReplacementDisplacesIncumbent(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	co, err := h.engine.ProcessCompany(ctx, model.RawCompany{Name: "Acme Inc", Domain: "acme.com"})
	require.NoError(t, err)

	first, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Jane", LastName: "Doe", Title: "VP of Human Resources", CompanyDomain: "acme.com",
	})
	require.NoError(t, err)
	require.Equal(t, slot.ActionFilled, first.Decision.Action)

	// Rank 100 vs incumbent 90: clears the margin, incumbent displaced.
	second, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Ann", LastName: "Lee", Title: "Chief People Officer", CompanyDomain: "acme.com",
	})
	require.NoError(t, err)

	assert.Equal(t, slot.ActionReplaced, second.Decision.Action)
	assert.Equal(t, first.Person.ID, second.Decision.DisplacedPersonID)

	displaced, err := h.store.GetPerson(ctx, first.Person.ID)
	require.NoError(t, err)
	require.NotNil(t, displaced)
	assert.Empty(t, displaced.Slot)

	slots, err := h.store.ListSlots(ctx, co.Company.ID)
	require.NoError(t, err)
	require.NoError(t, slot.CheckInvariant(slots))

	kinds := make(map[model.SignalKind]bool)
	signals, err := h.store.ListSignals(ctx, co.Company.ID)
	require.NoError(t, err)
	for _, s := range signals {
		kinds[s.Kind] = true
	}
	assert.True(t, kinds[model.SignalSlotFilled])
	assert.True(t, kinds[model.SignalExecutiveJoined])
	assert.True(t, kinds[model.SignalExecutiveLeft])
}

func TestProcessPerson_NoAnchorGoesToHolding(t *testing.T) {
	h := newTestEngine(t)

	out, err := h.engine.ProcessPerson(context.Background(), model.RawPerson{
		FirstName: "Jane", LastName: "Doe", Title: "HR Manager",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusHeld, out.Status)
	assert.Equal(t, model.ReasonMissingAnchor, out.Holding.Reason)
}

func TestProcessPerson_UnclassifiableTitleGoesToHolding(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	_, err := h.engine.ProcessCompany(ctx, model.RawCompany{Name: "Acme Inc", Domain: "acme.com"})
	require.NoError(t, err)

	out, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Jane", LastName: "Doe", Title: "Forklift Operator", CompanyDomain: "acme.com",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusHeld, out.Status)
	assert.Equal(t, model.ReasonMissingTitle, out.Holding.Reason)
}

func TestProcessPerson_SamePersonRescored(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	_, err := h.engine.ProcessCompany(ctx, model.RawCompany{Name: "Acme Inc", Domain: "acme.com"})
	require.NoError(t, err)

	first, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Jane", LastName: "Doe", Title: "HR Manager", CompanyDomain: "acme.com",
	})
	require.NoError(t, err)
	require.Equal(t, slot.ActionFilled, first.Decision.Action)

	// Same person, promoted title: rescored in place, no displacement.
	second, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Jane", LastName: "Doe", Title: "HR Director", CompanyDomain: "acme.com",
	})
	require.NoError(t, err)

	assert.Equal(t, slot.ActionRescored, second.Decision.Action)
	assert.Equal(t, first.Person.ID, second.Person.ID)
}

func TestProcessCompanies_BatchTallies(t *testing.T) {
	h := newTestEngine(t)

	raws := []model.RawCompany{
		{Name: "Acme Inc", Domain: "acme.com"},
		{Name: "Ghost LLC", Domain: "ghost.invalid"},
		{Name: ""},
	}

	res, err := h.engine.ProcessCompanies(context.Background(), raws, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Held) // missing name
	assert.Equal(t, 0, res.Failed)
}

func TestRetryHolding_ResolvesOnceAnchorExists(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	held, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Jane", LastName: "Doe", Title: "HR Manager", CompanyDomain: "acme.com",
	})
	require.NoError(t, err)
	require.Equal(t, StatusHeld, held.Status)

	// The anchor company arrives later.
	_, err = h.engine.ProcessCompany(ctx, model.RawCompany{Name: "Acme Inc", Domain: "acme.com"})
	require.NoError(t, err)

	res, err := h.engine.RetryHolding(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 1, res.Resolved)

	remaining, err := h.store.ListHolding(ctx, store.HoldingFilter{Kind: model.HoldingPerson})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRetryHolding_RequeuesWithChargedBudget(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	held, err := h.engine.ProcessPerson(ctx, model.RawPerson{
		FirstName: "Jane", LastName: "Doe", Title: "HR Manager", CompanyDomain: "nowhere.invalid",
	})
	require.NoError(t, err)
	require.Equal(t, StatusHeld, held.Status)

	res, err := h.engine.RetryHolding(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 0, res.Resolved)
	assert.Equal(t, 1, res.Requeued)

	entry, err := h.store.GetHolding(ctx, held.Holding.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.RetryCount)
	assert.True(t, entry.NextRetryAt.After(testNow))
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var counter int
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			unlock := km.Lock("acme")
			counter++
			unlock()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	assert.Equal(t, 50, counter)
	assert.Empty(t, km.locks)
}
