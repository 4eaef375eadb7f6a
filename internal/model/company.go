// Package model defines the core domain types for the intent resolution pipeline.
package model

import (
	"time"
)

// CompanyIdentity is the canonical, deduplicated record for a real-world company.
// The ID is immutable; domain and email pattern changes are append-only history
// (see DomainRecord and EmailPattern); the fields here are convenience
// projections of the latest history rows.
type CompanyIdentity struct {
	ID             string `json:"id" db:"id"`
	Name           string `json:"name" db:"name"`
	NormalizedName string `json:"normalized_name" db:"normalized_name"`
	Domain         string `json:"domain,omitempty" db:"domain"`
	Pattern        string `json:"pattern,omitempty" db:"pattern"`
	TaxID          string `json:"tax_id,omitempty" db:"tax_id"`

	City   string `json:"city,omitempty" db:"city"`
	State  string `json:"state,omitempty" db:"state"`
	Region string `json:"region,omitempty" db:"region"`

	EmployeeCount *int `json:"employee_count,omitempty" db:"employee_count"`

	// DataQuality is a 0-1 completeness score recomputed on write.
	DataQuality float64 `json:"data_quality" db:"data_quality"`

	// MergedInto marks this identity as a duplicate of another. Merged
	// identities are never deleted.
	MergedInto string `json:"merged_into,omitempty" db:"merged_into"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsMerged reports whether this identity has been folded into another.
func (c *CompanyIdentity) IsMerged() bool {
	return c.MergedInto != ""
}

// ComputeDataQuality scores field completeness on [0, 1].
func (c *CompanyIdentity) ComputeDataQuality() float64 {
	fields := []bool{
		c.Name != "",
		c.Domain != "",
		c.Pattern != "",
		c.TaxID != "",
		c.City != "",
		c.State != "",
		c.EmployeeCount != nil,
	}
	filled := 0
	for _, ok := range fields {
		if ok {
			filled++
		}
	}
	return float64(filled) / float64(len(fields))
}

// RawCompany is a company intake record before identity resolution.
type RawCompany struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	TaxID  string `json:"tax_id,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`

	// EmployeeCount is optional intake metadata carried onto a newly
	// created identity.
	EmployeeCount *int `json:"employee_count,omitempty"`
}

// DomainStatus classifies the outcome of domain resolution.
type DomainStatus string

const (
	// DomainValid resolves and has at least one MX record.
	DomainValid DomainStatus = "valid"
	// DomainValidNoMX resolves but has no MX record. Usable for
	// website-derived enrichment, not for live-mail verification.
	DomainValidNoMX DomainStatus = "valid_no_mx"
	// DomainParked points at a known parking service.
	DomainParked DomainStatus = "parked"
	// DomainUnreachable has no resolvable address.
	DomainUnreachable DomainStatus = "unreachable"
	// DomainMissing means no domain candidate was available at all.
	DomainMissing DomainStatus = "missing"
)

// Mailable reports whether the status supports pattern verification
// against live mail infrastructure.
func (s DomainStatus) Mailable() bool {
	return s == DomainValid
}

// Usable reports whether the domain can feed the pattern waterfall at all.
func (s DomainStatus) Usable() bool {
	return s == DomainValid || s == DomainValidNoMX
}

// DomainRecord is the per-company domain resolution state. Rows are
// append-only: a re-resolution supersedes the previous row rather than
// overwriting it.
type DomainRecord struct {
	ID           string       `json:"id" db:"id"`
	CompanyID    string       `json:"company_id" db:"company_id"`
	Domain       string       `json:"domain,omitempty" db:"domain"`
	Status       DomainStatus `json:"status" db:"status"`
	CheckedAt    time.Time    `json:"checked_at" db:"checked_at"`
	SupersededAt *time.Time   `json:"superseded_at,omitempty" db:"superseded_at"`
}
