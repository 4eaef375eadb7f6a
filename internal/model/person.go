package model

import "time"

// SlotType names a fixed executive role position at a company.
type SlotType string

const (
	SlotHRExecutive  SlotType = "hr_executive"
	SlotHRManager    SlotType = "hr_manager"
	SlotBenefitsLead SlotType = "benefits_lead"
	SlotPayrollAdmin SlotType = "payroll_admin"
	SlotHRSupport    SlotType = "hr_support"
)

// SlotTypes lists all slot types in descending seniority order.
var SlotTypes = []SlotType{
	SlotHRExecutive,
	SlotHRManager,
	SlotBenefitsLead,
	SlotPayrollAdmin,
	SlotHRSupport,
}

// PersonRecord is a person attached to a company identity.
type PersonRecord struct {
	ID        string `json:"id" db:"id"`
	CompanyID string `json:"company_id" db:"company_id"`

	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`
	FullName  string `json:"full_name" db:"full_name"`
	Title     string `json:"title,omitempty" db:"title"`

	// SeniorityRank is derived from Title by the slot classifier.
	SeniorityRank int `json:"seniority_rank" db:"seniority_rank"`

	// Slot is empty until the person wins a slot assignment.
	Slot SlotType `json:"slot,omitempty" db:"slot"`

	Email           string         `json:"email,omitempty" db:"email"`
	EmailConfidence ConfidenceTier `json:"email_confidence,omitempty" db:"email_confidence"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RawPerson is a person intake record before binding and slot assignment.
type RawPerson struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Title     string `json:"title,omitempty"`

	// Company anchor: at least one of domain, tax ID, or name is required
	// to bind the person to an identity.
	CompanyDomain string `json:"company_domain,omitempty"`
	CompanyTaxID  string `json:"company_tax_id,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
}

// SlotState is the lifecycle state of a slot.
type SlotState string

const (
	SlotOpen   SlotState = "open"
	SlotFilled SlotState = "filled"
)

// Slot is a (company, slot type) position holding at most one person.
type Slot struct {
	CompanyID string    `json:"company_id" db:"company_id"`
	Type      SlotType  `json:"type" db:"type"`
	State     SlotState `json:"state" db:"state"`

	// PersonID and Rank are set only when State is SlotFilled.
	PersonID string `json:"person_id,omitempty" db:"person_id"`
	Rank     int    `json:"rank,omitempty" db:"rank"`

	FilledAt  *time.Time `json:"filled_at,omitempty" db:"filled_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}
