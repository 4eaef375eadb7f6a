package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinTier_FailureWins(t *testing.T) {
	assert.Equal(t, TierFailed, MinTier(TierVerified, TierFailed))
	assert.Equal(t, TierFailed, MinTier(TierFailed, TierVerified))
}

func TestMinTier_Ordering(t *testing.T) {
	assert.Equal(t, TierLikelyValid, MinTier(TierVerified, TierLikelyValid))
	assert.Equal(t, TierUnverified, MinTier(TierLikelyValid, TierUnverified))
	assert.Equal(t, TierVerified, MinTier(TierVerified, TierVerified))
}

func TestDomainStatus_Mailable(t *testing.T) {
	assert.True(t, DomainValid.Mailable())
	assert.False(t, DomainValidNoMX.Mailable())
	assert.False(t, DomainParked.Mailable())
	assert.False(t, DomainUnreachable.Mailable())
	assert.False(t, DomainMissing.Mailable())
}

func TestDomainStatus_Usable(t *testing.T) {
	assert.True(t, DomainValid.Usable())
	assert.True(t, DomainValidNoMX.Usable())
	assert.False(t, DomainParked.Usable())
}

func TestComputeDataQuality_Empty(t *testing.T) {
	c := CompanyIdentity{}
	assert.Equal(t, 0.0, c.ComputeDataQuality())
}

func TestComputeDataQuality_Full(t *testing.T) {
	n := 120
	c := CompanyIdentity{
		Name:          "Acme Inc",
		Domain:        "acme.com",
		Pattern:       "{first}.{last}",
		TaxID:         "12-3456789",
		City:          "Austin",
		State:         "TX",
		EmployeeCount: &n,
	}
	assert.Equal(t, 1.0, c.ComputeDataQuality())
}

func TestComputeDataQuality_Partial(t *testing.T) {
	c := CompanyIdentity{Name: "Acme Inc", Domain: "acme.com"}
	assert.InDelta(t, 2.0/7.0, c.ComputeDataQuality(), 1e-9)
}

func TestHoldingEntry_CanRetry(t *testing.T) {
	e := HoldingEntry{RetryCount: 2, MaxRetries: 3}
	assert.True(t, e.CanRetry())

	e.RetryCount = 3
	assert.False(t, e.CanRetry())
}

func TestSlotTypes_DescendingOrder(t *testing.T) {
	assert.Equal(t, SlotHRExecutive, SlotTypes[0])
	assert.Equal(t, SlotHRSupport, SlotTypes[len(SlotTypes)-1])
	assert.Len(t, SlotTypes, 5)
}
