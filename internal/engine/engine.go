// Package engine orchestrates the resolution pipeline: match, domain,
// pattern, verify, slot, signals, score. Each stage commits its own result
// before the next stage runs, and a later stage never re-derives a missing
// upstream result.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/domain"
	"github.com/sells-group/intent-core/internal/match"
	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/pattern"
	"github.com/sells-group/intent-core/internal/resilience"
	"github.com/sells-group/intent-core/internal/signal"
	"github.com/sells-group/intent-core/internal/slot"
	"github.com/sells-group/intent-core/internal/store"
)

// Status labels the terminal state of one processed record.
type Status string

const (
	StatusResolved Status = "resolved"
	StatusCreated  Status = "created"
	StatusHeld     Status = "held"
)

// CompanyOutcome reports what happened to one raw company record.
type CompanyOutcome struct {
	Status    Status                 `json:"status"`
	Company   *model.CompanyIdentity `json:"company,omitempty"`
	MatchTier match.Tier             `json:"match_tier,omitempty"`
	Domain    *model.DomainRecord    `json:"domain,omitempty"`
	Pattern   *model.EmailPattern    `json:"pattern,omitempty"`
	Holding   *model.HoldingEntry    `json:"holding,omitempty"`
}

// PersonOutcome reports what happened to one raw person record.
type PersonOutcome struct {
	Status   Status              `json:"status"`
	Person   *model.PersonRecord `json:"person,omitempty"`
	Decision *slot.Decision      `json:"decision,omitempty"`
	Holding  *model.HoldingEntry `json:"holding,omitempty"`
}

// Engine wires the pipeline stages over one store.
type Engine struct {
	store    store.Store
	matcher  *match.Matcher
	resolver *domain.Resolver
	waterf   *pattern.Waterfall
	verifier *pattern.Verifier
	assigner *slot.Assigner
	scorer   *signal.Scorer

	score   config.ScoreConfig
	holding resilience.HoldingPolicy

	locks   *keyedMutex
	nowFunc func() time.Time
}

// Options carries the stage implementations the engine coordinates. Waterfall
// and Verifier may be nil; pattern stages are skipped when absent.
type Options struct {
	Store     store.Store
	Matcher   *match.Matcher
	Resolver  *domain.Resolver
	Waterfall *pattern.Waterfall
	Verifier  *pattern.Verifier
	Assigner  *slot.Assigner
	Scorer    *signal.Scorer
	Score     config.ScoreConfig
	Holding   config.HoldingConfig
}

// New creates an Engine.
func New(opts Options) *Engine {
	return &Engine{
		store:    opts.Store,
		matcher:  opts.Matcher,
		resolver: opts.Resolver,
		waterf:   opts.Waterfall,
		verifier: opts.Verifier,
		assigner: opts.Assigner,
		scorer:   opts.Scorer,
		score:    opts.Score,
		holding: resilience.HoldingPolicy{
			MaxRetries: opts.Holding.MaxRetries,
			Backoff:    time.Duration(opts.Holding.BackoffMinutes) * time.Minute,
		},
		locks:   newKeyedMutex(),
		nowFunc: time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.nowFunc = now
	return e
}

// ProcessCompany runs one raw company record through the pipeline: identity
// match (creating a new identity on a clean miss), domain resolution,
// pattern discovery, and verification. Ambiguous matches go to holding and
// nothing downstream runs for them.
func (e *Engine) ProcessCompany(ctx context.Context, raw model.RawCompany) (*CompanyOutcome, error) {
	res, err := e.matcher.Match(ctx, raw)
	if err != nil {
		return nil, eris.Wrap(err, "engine: match")
	}

	switch {
	case res.Matched():
		// fall through to the downstream stages
	case res.Reason == model.ReasonNoMatch:
		return e.createOrRebind(ctx, raw)
	default:
		entry, err := e.hold(ctx, model.HoldingCompany, res.Reason, raw, res.Detail)
		if err != nil {
			return nil, err
		}
		return &CompanyOutcome{Status: StatusHeld, Holding: entry}, nil
	}

	out, err := e.resolveDownstream(ctx, res.Company, raw.Domain)
	if err != nil {
		return nil, err
	}
	out.Status = StatusResolved
	out.MatchTier = res.Tier
	return out, nil
}

// createOrRebind handles a clean-miss intake record. Creation is serialized
// on the normalized name and the match re-run under the lock: two workers
// can miss on the same new company at once, and the loser must bind the
// identity the winner created rather than trip the unique name index.
func (e *Engine) createOrRebind(ctx context.Context, raw model.RawCompany) (*CompanyOutcome, error) {
	unlock := e.locks.Lock("name:" + match.NormalizeName(raw.Name))
	defer unlock()

	res, err := e.matcher.Match(ctx, raw)
	if err != nil {
		return nil, eris.Wrap(err, "engine: rematch")
	}

	switch {
	case res.Matched():
		out, err := e.resolveDownstream(ctx, res.Company, raw.Domain)
		if err != nil {
			return nil, err
		}
		out.Status = StatusResolved
		out.MatchTier = res.Tier
		return out, nil
	case res.Reason == model.ReasonNoMatch:
		c, err := e.createIdentity(ctx, raw)
		if err != nil {
			return nil, err
		}
		out, err := e.resolveDownstream(ctx, c, raw.Domain)
		if err != nil {
			return nil, err
		}
		out.Status = StatusCreated
		return out, nil
	default:
		entry, err := e.hold(ctx, model.HoldingCompany, res.Reason, raw, res.Detail)
		if err != nil {
			return nil, err
		}
		return &CompanyOutcome{Status: StatusHeld, Holding: entry}, nil
	}
}

// createIdentity makes a new company identity from an intake record that
// matched nothing.
func (e *Engine) createIdentity(ctx context.Context, raw model.RawCompany) (*model.CompanyIdentity, error) {
	c := &model.CompanyIdentity{
		Name:           raw.Name,
		NormalizedName: match.NormalizeName(raw.Name),
		Domain:         match.NormalizeDomain(raw.Domain),
		TaxID:          match.NormalizeTaxID(raw.TaxID),
		City:           raw.City,
		State:          raw.State,
		EmployeeCount:  raw.EmployeeCount,
	}
	if err := e.store.CreateCompany(ctx, c); err != nil {
		return nil, eris.Wrap(err, "engine: create identity")
	}
	zap.L().Info("engine: identity created",
		zap.String("company_id", c.ID),
		zap.String("name", c.Name),
	)
	return c, nil
}

// resolveDownstream runs the stages that follow a successful identity bind.
// Each stage persists before the next starts, so a crash leaves committed
// partial progress rather than an inconsistent record.
func (e *Engine) resolveDownstream(ctx context.Context, c *model.CompanyIdentity, intakeDomain string) (*CompanyOutcome, error) {
	out := &CompanyOutcome{Company: c}

	rec, err := e.ensureDomain(ctx, c, intakeDomain)
	if err != nil {
		return nil, err
	}
	out.Domain = rec

	if rec.Status != model.DomainValid && rec.Status != model.DomainValidNoMX {
		// No usable domain: pattern discovery has nothing to work with.
		return out, nil
	}

	p, err := e.ensurePattern(ctx, c, rec)
	if err != nil {
		return nil, err
	}
	out.Pattern = p
	return out, nil
}

// ensureDomain returns the current domain record, re-resolving when none
// exists or the stored one has gone stale.
func (e *Engine) ensureDomain(ctx context.Context, c *model.CompanyIdentity, intakeDomain string) (*model.DomainRecord, error) {
	cur, err := e.store.CurrentDomainRecord(ctx, c.ID)
	if err != nil {
		return nil, eris.Wrap(err, "engine: current domain record")
	}
	if cur != nil && !e.resolver.Stale(cur) {
		return cur, nil
	}

	rec := e.resolver.Resolve(ctx, c, intakeDomain)
	if err := e.store.AppendDomainRecord(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "engine: append domain record")
	}
	if rec.Status == model.DomainValid || rec.Status == model.DomainValidNoMX {
		if c.Domain != rec.Domain {
			c.Domain = rec.Domain
			if err := e.store.UpdateCompany(ctx, c); err != nil {
				return nil, eris.Wrap(err, "engine: update canonical domain")
			}
		}
	}
	return rec, nil
}

// ensurePattern returns the company's current email pattern, running
// discovery and verification when none exists.
func (e *Engine) ensurePattern(ctx context.Context, c *model.CompanyIdentity, rec *model.DomainRecord) (*model.EmailPattern, error) {
	cur, err := e.store.CurrentEmailPattern(ctx, c.ID)
	if err != nil {
		return nil, eris.Wrap(err, "engine: current pattern")
	}
	if cur != nil {
		return cur, nil
	}
	if e.waterf == nil {
		return nil, nil
	}

	disc, err := e.waterf.Discover(ctx, c, rec)
	if err != nil {
		return nil, eris.Wrap(err, "engine: pattern discovery")
	}
	p := disc.Pattern

	if e.verifier != nil {
		v := e.verifier.Verify(ctx, pattern.VerifyInput{
			Template:     p.Template,
			Domain:       rec.Domain,
			DomainStatus: rec.Status,
		})
		p.Confidence = v.Confidence
	}

	if err := e.store.AppendEmailPattern(ctx, p); err != nil {
		return nil, eris.Wrap(err, "engine: append pattern")
	}

	if p.Confidence == model.TierVerified {
		if err := e.emitSignal(ctx, c.ID, model.SignalEmailVerified, "pattern", e.nowFunc()); err != nil {
			return nil, err
		}
		if err := e.RecomputeScore(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ProcessPerson binds a raw person to a company via its anchor, classifies
// the title, and runs the slot contest under the company's lock. Losers keep
// their person row; only the slot decision differs.
func (e *Engine) ProcessPerson(ctx context.Context, raw model.RawPerson) (*PersonOutcome, error) {
	c, err := e.bindAnchor(ctx, raw)
	if err != nil {
		return nil, err
	}
	if c == nil {
		entry, err := e.hold(ctx, model.HoldingPerson, model.ReasonMissingAnchor, raw, "no company anchor resolved")
		if err != nil {
			return nil, err
		}
		return &PersonOutcome{Status: StatusHeld, Holding: entry}, nil
	}

	unlock := e.locks.Lock(c.ID)
	defer unlock()

	person, err := e.materializePerson(ctx, raw, c.ID)
	if err != nil {
		return nil, err
	}

	decision, slotRow, err := e.assignSlot(ctx, c, person)
	if err != nil {
		return nil, err
	}

	switch decision.Action {
	case slot.ActionUnplaced:
		if decision.Reason == model.ReasonMissingTitle {
			if err := e.store.UpsertPerson(ctx, person); err != nil {
				return nil, eris.Wrap(err, "engine: upsert person")
			}
			entry, err := e.hold(ctx, model.HoldingPerson, decision.Reason, raw, fmt.Sprintf("title %q unclassifiable", raw.Title))
			if err != nil {
				return nil, err
			}
			return &PersonOutcome{Status: StatusHeld, Person: person, Decision: decision, Holding: entry}, nil
		}
		return nil, eris.Errorf("engine: unplaced person with reason %s", decision.Reason)

	case slot.ActionRetained:
		if err := e.store.UpsertPerson(ctx, person); err != nil {
			return nil, eris.Wrap(err, "engine: upsert person")
		}
		entry, err := e.hold(ctx, model.HoldingPerson, model.ReasonOutranked, raw,
			fmt.Sprintf("slot %s held by higher-ranked incumbent", decision.Slot))
		if err != nil {
			return nil, err
		}
		return &PersonOutcome{Status: StatusHeld, Person: person, Decision: decision, Holding: entry}, nil
	}

	// Filled, Replaced, or Rescored: persist the slot and winner, then wire
	// the email and emit signals.
	if err := e.applyPattern(ctx, c, person); err != nil {
		return nil, err
	}
	if err := e.store.UpsertPerson(ctx, person); err != nil {
		return nil, eris.Wrap(err, "engine: upsert person")
	}
	if err := e.store.SaveSlot(ctx, slotRow); err != nil {
		return nil, eris.Wrap(err, "engine: save slot")
	}

	if decision.DisplacedPersonID != "" {
		if err := e.clearDisplaced(ctx, decision.DisplacedPersonID); err != nil {
			return nil, err
		}
	}

	if err := e.emitSlotSignals(ctx, c.ID, decision); err != nil {
		return nil, err
	}
	if err := e.recomputeLocked(ctx, c.ID); err != nil {
		return nil, err
	}

	return &PersonOutcome{Status: StatusResolved, Person: person, Decision: decision}, nil
}

// bindAnchor resolves a person's company anchor: exact domain, then exact
// tax ID, then the company matcher by name. Returns nil when nothing binds.
func (e *Engine) bindAnchor(ctx context.Context, raw model.RawPerson) (*model.CompanyIdentity, error) {
	if d := match.NormalizeDomain(raw.CompanyDomain); d != "" {
		c, err := e.store.GetCompanyByDomain(ctx, d)
		if err != nil {
			return nil, eris.Wrap(err, "engine: anchor by domain")
		}
		if c != nil {
			return c, nil
		}
	}
	if tid := match.NormalizeTaxID(raw.CompanyTaxID); tid != "" {
		c, err := e.store.GetCompanyByTaxID(ctx, tid)
		if err != nil {
			return nil, eris.Wrap(err, "engine: anchor by tax id")
		}
		if c != nil {
			return c, nil
		}
	}
	if raw.CompanyName == "" {
		return nil, nil
	}
	res, err := e.matcher.Match(ctx, model.RawCompany{Name: raw.CompanyName, Domain: raw.CompanyDomain})
	if err != nil {
		return nil, eris.Wrap(err, "engine: anchor by name")
	}
	if !res.Matched() {
		return nil, nil
	}
	return res.Company, nil
}

// materializePerson builds the person record for a raw intake row, reusing
// an existing row for the same company and full name so reprocessing
// re-evaluates rather than duplicates.
func (e *Engine) materializePerson(ctx context.Context, raw model.RawPerson, companyID string) (*model.PersonRecord, error) {
	first, last := raw.FirstName, raw.LastName
	full := raw.FullName
	if full == "" {
		full = strings.TrimSpace(first + " " + last)
	}
	if first == "" && last == "" {
		first, last = pattern.SplitName(full)
	}

	person := &model.PersonRecord{
		CompanyID: companyID,
		FirstName: first,
		LastName:  last,
		FullName:  full,
		Title:     raw.Title,
	}

	existing, err := e.store.ListPeopleByCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "engine: list people")
	}
	for _, p := range existing {
		if strings.EqualFold(p.FullName, full) {
			person.ID = p.ID
			person.CreatedAt = p.CreatedAt
			break
		}
	}
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	return person, nil
}

// assignSlot loads the person's target slot and runs the contest. The
// caller holds the company lock.
func (e *Engine) assignSlot(ctx context.Context, c *model.CompanyIdentity, person *model.PersonRecord) (*slot.Decision, *model.Slot, error) {
	class, ok := slot.ClassifyTitle(person.Title)
	if !ok {
		// The assigner produces the typed unplaced decision.
		d, err := e.assigner.Assign(nil, person)
		if err != nil {
			return nil, nil, eris.Wrap(err, "engine: assign")
		}
		return &d, nil, nil
	}

	current, err := e.store.GetSlot(ctx, c.ID, class.Slot)
	if err != nil {
		return nil, nil, eris.Wrap(err, "engine: load slot")
	}
	if current == nil {
		current = &model.Slot{CompanyID: c.ID, Type: class.Slot, State: model.SlotOpen}
	}
	d, err := e.assigner.Assign(current, person)
	if err != nil {
		return nil, nil, eris.Wrap(err, "engine: assign")
	}
	return &d, current, nil
}

// applyPattern renders the person's email from the company's current
// pattern. A missing pattern leaves the email empty; it is never guessed.
func (e *Engine) applyPattern(ctx context.Context, c *model.CompanyIdentity, person *model.PersonRecord) error {
	p, err := e.store.CurrentEmailPattern(ctx, c.ID)
	if err != nil {
		return eris.Wrap(err, "engine: current pattern")
	}
	if p == nil || c.Domain == "" {
		return nil
	}
	email, err := pattern.Render(p.Template, person.FirstName, person.LastName, c.Domain)
	if err != nil {
		return nil //nolint:nilerr // unusable name parts, leave email empty
	}
	person.Email = email
	person.EmailConfidence = p.Confidence
	return nil
}

func (e *Engine) clearDisplaced(ctx context.Context, personID string) error {
	displaced, err := e.store.GetPerson(ctx, personID)
	if err != nil {
		return eris.Wrap(err, "engine: load displaced person")
	}
	if displaced == nil {
		return nil
	}
	displaced.Slot = ""
	if err := e.store.UpsertPerson(ctx, displaced); err != nil {
		return eris.Wrap(err, "engine: clear displaced person")
	}
	return nil
}

func (e *Engine) emitSlotSignals(ctx context.Context, companyID string, d *slot.Decision) error {
	now := e.nowFunc()
	switch d.Action {
	case slot.ActionFilled:
		if err := e.emitSignal(ctx, companyID, model.SignalSlotFilled, "slots", now); err != nil {
			return err
		}
	case slot.ActionReplaced:
		if err := e.emitSignal(ctx, companyID, model.SignalSlotFilled, "slots", now); err != nil {
			return err
		}
		if err := e.emitSignal(ctx, companyID, model.SignalExecutiveJoined, "slots", now); err != nil {
			return err
		}
		if d.Slot == model.SlotHRExecutive {
			if err := e.emitSignal(ctx, companyID, model.SignalExecutiveLeft, "slots", now); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) emitSignal(ctx context.Context, companyID string, kind model.SignalKind, source string, at time.Time) error {
	s := &model.Signal{
		ID:         uuid.NewString(),
		CompanyID:  companyID,
		Kind:       kind,
		Source:     source,
		Impact:     signal.DefaultImpact(kind),
		OccurredAt: at.UTC(),
		DedupKey:   signal.DedupKey(e.score, kind, companyID, at),
		CreatedAt:  e.nowFunc().UTC(),
	}
	if _, err := e.store.AppendSignal(ctx, s); err != nil {
		return eris.Wrapf(err, "engine: append %s signal", kind)
	}
	return nil
}

// RecomputeScore rebuilds a company's intent score from its signal history
// under the company lock.
func (e *Engine) RecomputeScore(ctx context.Context, companyID string) error {
	unlock := e.locks.Lock(companyID)
	defer unlock()
	return e.recomputeLocked(ctx, companyID)
}

func (e *Engine) recomputeLocked(ctx context.Context, companyID string) error {
	signals, err := e.store.ListSignals(ctx, companyID)
	if err != nil {
		return eris.Wrap(err, "engine: list signals")
	}
	score := e.scorer.Recompute(companyID, signals)
	if err := e.store.SaveScore(ctx, &score); err != nil {
		return eris.Wrap(err, "engine: save score")
	}
	return nil
}

// hold parks a record in the holding queue with a typed reason.
func (e *Engine) hold(ctx context.Context, kind model.HoldingKind, reason model.HoldingReason, raw any, detail string) (*model.HoldingEntry, error) {
	entry, err := resilience.NewHoldingEntry(kind, reason, raw, detail, e.holding)
	if err != nil {
		return nil, eris.Wrap(err, "engine: build holding entry")
	}
	if err := e.store.EnqueueHolding(ctx, entry); err != nil {
		return nil, eris.Wrap(err, "engine: enqueue holding")
	}
	zap.L().Info("engine: record held",
		zap.String("kind", string(kind)),
		zap.String("reason", string(reason)),
		zap.String("detail", detail),
	)
	return entry, nil
}
