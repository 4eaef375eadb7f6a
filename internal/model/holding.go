package model

import "time"

// HoldingReason is a machine-readable code for why a record landed in the
// holding queue instead of being resolved.
type HoldingReason string

const (
	// ReasonAmbiguousMatch means the matcher's top candidates were within
	// the collision margin and require manual adjudication.
	ReasonAmbiguousMatch HoldingReason = "ambiguous_match"
	// ReasonNoMatch means no existing identity matched and auto-creation
	// was not permitted.
	ReasonNoMatch HoldingReason = "no_match"
	// ReasonMissingName means the intake record lacked the required name.
	ReasonMissingName HoldingReason = "missing_name"
	// ReasonMissingAnchor means a person record had no usable company anchor.
	ReasonMissingAnchor HoldingReason = "missing_anchor"
	// ReasonMissingTitle means a person could not be ranked for slotting.
	ReasonMissingTitle HoldingReason = "missing_title"
	// ReasonOutranked means a person lost a seniority contest and is queued
	// for enrichment retry.
	ReasonOutranked HoldingReason = "outranked"
	// ReasonUpstreamFailed means a required upstream stage result is missing;
	// downstream stages never re-derive it.
	ReasonUpstreamFailed HoldingReason = "upstream_failed"
)

// HoldingKind distinguishes what kind of raw record is held.
type HoldingKind string

const (
	HoldingCompany HoldingKind = "company"
	HoldingPerson  HoldingKind = "person"
)

// HoldingEntry is a record parked for manual review or bounded retry.
// Entries that exhaust their retry budget stay queued permanently; they are
// never dropped.
type HoldingEntry struct {
	ID     string        `json:"id" db:"id"`
	Kind   HoldingKind   `json:"kind" db:"kind"`
	Reason HoldingReason `json:"reason" db:"reason"`

	// Raw is the original intake record, JSON-encoded.
	Raw []byte `json:"raw" db:"raw"`

	// Detail carries human-readable context (e.g. the two colliding
	// candidate IDs).
	Detail string `json:"detail,omitempty" db:"detail"`

	RetryCount  int       `json:"retry_count" db:"retry_count"`
	MaxRetries  int       `json:"max_retries" db:"max_retries"`
	NextRetryAt time.Time `json:"next_retry_at" db:"next_retry_at"`

	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at" db:"last_failed_at"`
}

// CanRetry reports whether the entry still has retry budget.
func (e *HoldingEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}
