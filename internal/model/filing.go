package model

import "time"

// Filing is a regulatory benefit-plan filing keyed by sponsor EIN.
// Filings are matched to companies by exact EIN only, never fuzzy, so the
// boundary stays fail-closed.
type Filing struct {
	ID  string `json:"id" db:"id"`
	EIN string `json:"ein" db:"ein"`

	SponsorName  string `json:"sponsor_name" db:"sponsor_name"`
	SponsorCity  string `json:"sponsor_city,omitempty" db:"sponsor_city"`
	SponsorState string `json:"sponsor_state,omitempty" db:"sponsor_state"`

	PlanName     string `json:"plan_name,omitempty" db:"plan_name"`
	Participants int    `json:"participants" db:"participants"`
	BrokerName   string `json:"broker_name,omitempty" db:"broker_name"`

	PlanYear int       `json:"plan_year" db:"plan_year"`
	FiledAt  time.Time `json:"filed_at" db:"filed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
