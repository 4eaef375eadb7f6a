package slot

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/model"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestAssigner() *Assigner {
	return NewAssigner(config.SlotConfig{ReplaceMargin: 10}).
		WithNow(func() time.Time { return testNow })
}

func openSlot(typ model.SlotType) *model.Slot {
	return &model.Slot{CompanyID: "c1", Type: typ, State: model.SlotOpen}
}

func filledSlot(typ model.SlotType, personID string, rank int) *model.Slot {
	filled := testNow.Add(-24 * time.Hour)
	return &model.Slot{
		CompanyID: "c1",
		Type:      typ,
		State:     model.SlotFilled,
		PersonID:  personID,
		Rank:      rank,
		FilledAt:  &filled,
		UpdatedAt: filled,
	}
}

func person(id, title string) *model.PersonRecord {
	return &model.PersonRecord{ID: id, CompanyID: "c1", Title: title}
}

func TestAssign_FillsOpenSlot(t *testing.T) {
	a := newTestAssigner()
	s := openSlot(model.SlotHRManager)
	p := person("p1", "HR Manager")

	d, err := a.Assign(s, p)
	require.NoError(t, err)

	assert.Equal(t, ActionFilled, d.Action)
	assert.Equal(t, model.SlotHRManager, d.Slot)
	assert.Equal(t, 80, d.Rank)

	assert.Equal(t, model.SlotFilled, s.State)
	assert.Equal(t, "p1", s.PersonID)
	assert.Equal(t, 80, s.Rank)
	require.NotNil(t, s.FilledAt)
	assert.Equal(t, testNow, *s.FilledAt)

	assert.Equal(t, model.SlotHRManager, p.Slot)
	assert.Equal(t, 80, p.SeniorityRank)
}

func TestAssign_WithinMarginRetainsIncumbent(t *testing.T) {
	a := newTestAssigner()
	// Incumbent at 80, candidate at 85: a 5-point edge is inside the 10-point
	// margin, so the incumbent stays.
	s := filledSlot(model.SlotHRManager, "incumbent", 80)
	p := person("challenger", "Director of Human Resources")

	d, err := a.Assign(s, p)
	require.NoError(t, err)

	assert.Equal(t, ActionRetained, d.Action)
	assert.Equal(t, model.ReasonOutranked, d.Reason)
	assert.Equal(t, 85, d.Rank)
	assert.Equal(t, "incumbent", s.PersonID)
	assert.Equal(t, 80, s.Rank)
}

func TestAssign_ClearAdvantageReplaces(t *testing.T) {
	a := newTestAssigner()
	// Incumbent at 70, candidate at 85: a 15-point edge clears the margin.
	s := filledSlot(model.SlotHRManager, "incumbent", 70)
	p := person("challenger", "Director of Human Resources")

	d, err := a.Assign(s, p)
	require.NoError(t, err)

	assert.Equal(t, ActionReplaced, d.Action)
	assert.Equal(t, "incumbent", d.DisplacedPersonID)
	assert.Equal(t, "challenger", s.PersonID)
	assert.Equal(t, 85, s.Rank)
}

func TestAssign_ExactMarginReplaces(t *testing.T) {
	a := newTestAssigner()
	// 85 vs 75 with margin 10: rank >= incumbent+margin holds at the
	// boundary, so the candidate wins.
	s := filledSlot(model.SlotHRManager, "incumbent", 75)
	p := person("challenger", "HR Director")

	d, err := a.Assign(s, p)
	require.NoError(t, err)
	assert.Equal(t, ActionReplaced, d.Action)
}

func TestAssign_SamePersonRescored(t *testing.T) {
	a := newTestAssigner()
	s := filledSlot(model.SlotHRManager, "p1", 80)
	p := person("p1", "Director of Human Resources")

	d, err := a.Assign(s, p)
	require.NoError(t, err)

	assert.Equal(t, ActionRescored, d.Action)
	assert.Equal(t, 85, d.Rank)
	assert.Equal(t, "p1", s.PersonID)
	assert.Equal(t, 85, s.Rank)
}

func TestAssign_UnclassifiableTitleUnplaced(t *testing.T) {
	a := newTestAssigner()
	p := person("p1", "Software Engineer")

	d, err := a.Assign(openSlot(model.SlotHRManager), p)
	require.NoError(t, err)

	assert.Equal(t, ActionUnplaced, d.Action)
	assert.Equal(t, model.ReasonMissingTitle, d.Reason)
}

func TestAssign_MissingAnchorUnplaced(t *testing.T) {
	a := newTestAssigner()
	p := person("p1", "HR Manager")
	p.CompanyID = ""

	d, err := a.Assign(nil, p)
	require.NoError(t, err)

	assert.Equal(t, ActionUnplaced, d.Action)
	assert.Equal(t, model.ReasonMissingAnchor, d.Reason)
}

func TestAssign_SlotTypeMismatchIsInvariantError(t *testing.T) {
	a := newTestAssigner()
	p := person("p1", "HR Manager") // classifies to hr_manager

	_, err := a.Assign(openSlot(model.SlotPayrollAdmin), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestAssign_CorruptSlotStateIsInvariantError(t *testing.T) {
	a := newTestAssigner()
	p := person("p1", "HR Manager")

	s := openSlot(model.SlotHRManager)
	s.PersonID = "ghost" // open slot must not carry an occupant

	_, err := a.Assign(s, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestAssign_SequencePreservesUniqueness(t *testing.T) {
	a := newTestAssigner()
	s := openSlot(model.SlotHRManager)

	titles := []string{
		"HR Manager",                   // p0 fills at 80
		"People Operations Manager",    // p1 retained out (80 vs 80)
		"Director of Human Resources",  // p2 retained out (85 < 80+10)
		"HR Manager",                   // p3 retained out
		"Human Resources Director",     // p4 retained out
	}
	for i, title := range titles {
		_, err := a.Assign(s, person(fmt.Sprintf("p%d", i), title))
		require.NoError(t, err)
		require.NoError(t, CheckInvariant([]model.Slot{*s}))
	}

	assert.Equal(t, model.SlotFilled, s.State)
	assert.Equal(t, "p0", s.PersonID)
	assert.Equal(t, 80, s.Rank)
}

func TestCheckInvariant_DuplicateFilled(t *testing.T) {
	slots := []model.Slot{
		{CompanyID: "c1", Type: model.SlotHRManager, State: model.SlotFilled, PersonID: "a"},
		{CompanyID: "c1", Type: model.SlotHRManager, State: model.SlotFilled, PersonID: "b"},
	}
	err := CheckInvariant(slots)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestCheckInvariant_DistinctTypesOK(t *testing.T) {
	slots := []model.Slot{
		{CompanyID: "c1", Type: model.SlotHRManager, State: model.SlotFilled, PersonID: "a"},
		{CompanyID: "c1", Type: model.SlotPayrollAdmin, State: model.SlotFilled, PersonID: "b"},
		{CompanyID: "c2", Type: model.SlotHRManager, State: model.SlotFilled, PersonID: "c"},
		{CompanyID: "c1", Type: model.SlotBenefitsLead, State: model.SlotOpen},
	}
	assert.NoError(t, CheckInvariant(slots))
}
