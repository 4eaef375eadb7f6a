// Package store persists identities, history rows, signals, and scores.
package store

import (
	"context"
	"time"

	"github.com/sells-group/intent-core/internal/model"
)

// ScoreFilter specifies criteria for listing intent scores.
type ScoreFilter struct {
	Tier     model.ScoreTier `json:"tier,omitempty"`
	MinScore float64         `json:"min_score,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// HoldingFilter specifies criteria for listing holding-queue entries.
type HoldingFilter struct {
	Kind   model.HoldingKind   `json:"kind,omitempty"`
	Reason model.HoldingReason `json:"reason,omitempty"`
	// DueBefore limits results to entries whose next retry is due.
	DueBefore time.Time `json:"due_before,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// Store defines the persistence interface for the resolution pipeline.
// Not-found lookups return (nil, nil); errors are reserved for real
// failures.
type Store interface {
	// Companies
	CreateCompany(ctx context.Context, c *model.CompanyIdentity) error
	UpdateCompany(ctx context.Context, c *model.CompanyIdentity) error
	GetCompany(ctx context.Context, id string) (*model.CompanyIdentity, error)
	GetCompanyByDomain(ctx context.Context, domain string) (*model.CompanyIdentity, error)
	GetCompanyByNormalizedName(ctx context.Context, name string) (*model.CompanyIdentity, error)
	GetCompanyByTaxID(ctx context.Context, taxID string) (*model.CompanyIdentity, error)
	ListCompanies(ctx context.Context) ([]model.CompanyIdentity, error)

	// Domain resolution history. Append supersedes the current row; prior
	// rows are never updated or deleted.
	AppendDomainRecord(ctx context.Context, r *model.DomainRecord) error
	CurrentDomainRecord(ctx context.Context, companyID string) (*model.DomainRecord, error)

	// Email pattern history, same append-only discipline.
	AppendEmailPattern(ctx context.Context, p *model.EmailPattern) error
	CurrentEmailPattern(ctx context.Context, companyID string) (*model.EmailPattern, error)

	// People
	UpsertPerson(ctx context.Context, p *model.PersonRecord) error
	GetPerson(ctx context.Context, id string) (*model.PersonRecord, error)
	ListPeopleByCompany(ctx context.Context, companyID string) ([]model.PersonRecord, error)

	// Slots, keyed by (company, slot type).
	GetSlot(ctx context.Context, companyID string, typ model.SlotType) (*model.Slot, error)
	SaveSlot(ctx context.Context, s *model.Slot) error
	ListSlots(ctx context.Context, companyID string) ([]model.Slot, error)

	// Signals are append-only. AppendSignal reports false when a signal
	// with the same dedup key already exists; the duplicate is not stored.
	AppendSignal(ctx context.Context, s *model.Signal) (bool, error)
	ListSignals(ctx context.Context, companyID string) ([]model.Signal, error)

	// Intent scores, overwritten on recompute.
	SaveScore(ctx context.Context, score *model.IntentScore) error
	GetScore(ctx context.Context, companyID string) (*model.IntentScore, error)
	ListScores(ctx context.Context, filter ScoreFilter) ([]model.IntentScore, error)

	// Filings, keyed by (EIN, plan year).
	UpsertFiling(ctx context.Context, f *model.Filing) error
	GetFilingsByEIN(ctx context.Context, ein string) ([]model.Filing, error)

	// Holding queue
	EnqueueHolding(ctx context.Context, e *model.HoldingEntry) error
	UpdateHolding(ctx context.Context, e *model.HoldingEntry) error
	GetHolding(ctx context.Context, id string) (*model.HoldingEntry, error)
	ListHolding(ctx context.Context, filter HoldingFilter) ([]model.HoldingEntry, error)
	DeleteHolding(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
