package model

import "time"

// ConfidenceTier is a discrete quality label attached to a derived value.
type ConfidenceTier string

const (
	TierVerified    ConfidenceTier = "verified"
	TierLikelyValid ConfidenceTier = "likely_valid"
	TierUnverified  ConfidenceTier = "unverified"
	TierFailed      ConfidenceTier = "failed"
)

// tierOrder ranks tiers from worst to best for MinTier comparisons.
var tierOrder = map[ConfidenceTier]int{
	TierFailed:      0,
	TierUnverified:  1,
	TierLikelyValid: 2,
	TierVerified:    3,
}

// MinTier returns the weaker of two confidence tiers. Verification checks
// combine with MinTier so a single hard failure overrides earlier optimism.
func MinTier(a, b ConfidenceTier) ConfidenceTier {
	if tierOrder[a] <= tierOrder[b] {
		return a
	}
	return b
}

// EmailPattern is a discovered email-address format for a company.
// A company has at most one current pattern; superseded rows are retained
// for audit.
type EmailPattern struct {
	ID        string `json:"id" db:"id"`
	CompanyID string `json:"company_id" db:"company_id"`

	// Template uses {first}, {last}, {f}, {l} placeholders, e.g. "{first}.{last}".
	Template string `json:"template" db:"template"`

	// Source names the provider that produced the pattern, or "fallback".
	Source string `json:"source" db:"source"`

	Confidence   ConfidenceTier `json:"confidence" db:"confidence"`
	DiscoveredAt time.Time      `json:"discovered_at" db:"discovered_at"`
	SupersededAt *time.Time     `json:"superseded_at,omitempty" db:"superseded_at"`
}
