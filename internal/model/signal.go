package model

import "time"

// SignalKind is the type of a buyer-intent signal.
type SignalKind string

const (
	SignalFilingFound     SignalKind = "filing_found"
	SignalLargePlan       SignalKind = "large_plan"
	SignalBrokerChange    SignalKind = "broker_change"
	SignalSlotFilled      SignalKind = "slot_filled"
	SignalEmailVerified   SignalKind = "email_verified"
	SignalExecutiveJoined SignalKind = "executive_joined"
	SignalExecutiveLeft   SignalKind = "executive_left"
	SignalContentMention  SignalKind = "content_mention"
)

// Signal is a typed, timestamped piece of buyer-intent evidence.
// Signals are append-only; dedup logic supersedes, never mutates.
type Signal struct {
	ID        string     `json:"id" db:"id"`
	CompanyID string     `json:"company_id" db:"company_id"`
	Kind      SignalKind `json:"kind" db:"kind"`

	// Source names the emitting sub-hub (e.g. "filings", "slots", "pattern").
	Source string `json:"source" db:"source"`

	// Impact is the raw magnitude before decay and source weighting.
	Impact float64 `json:"impact" db:"impact"`

	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`

	// DedupKey collapses repeated equivalent signals: kind + company +
	// a time-bucket discriminator.
	DedupKey string `json:"dedup_key" db:"dedup_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ScoreTier labels an intent score band.
type ScoreTier string

const (
	ScoreCold ScoreTier = "cold"
	ScoreWarm ScoreTier = "warm"
)

// SignalContribution records how one signal fed a score computation.
type SignalContribution struct {
	SignalID   string     `json:"signal_id"`
	Kind       SignalKind `json:"kind"`
	Impact     float64    `json:"impact"`
	Decay      float64    `json:"decay"`
	Weight     float64    `json:"weight"`
	Contributn float64    `json:"contribution"`
}

// IntentScore is the current 0-100 buyer-intent score for a company.
// It is overwritten on recompute; history lives in the signal log.
type IntentScore struct {
	CompanyID      string               `json:"company_id" db:"company_id"`
	Score          float64              `json:"score" db:"score"`
	Tier           ScoreTier            `json:"tier" db:"tier"`
	RecalculatedAt time.Time            `json:"recalculated_at" db:"recalculated_at"`
	Contributing   []SignalContribution `json:"contributing,omitempty" db:"contributing"`
}
