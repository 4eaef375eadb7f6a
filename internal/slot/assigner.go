package slot

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/model"
)

// ErrInvariant means the at-most-one-filled-slot invariant was found broken.
// It is fatal for the record and must be surfaced, never auto-corrected.
var ErrInvariant = eris.New("slot: invariant violation")

// Action is what the assigner decided for a candidate.
type Action string

const (
	// ActionFilled means an empty slot was filled by the candidate.
	ActionFilled Action = "filled"
	// ActionReplaced means the candidate displaced the incumbent.
	ActionReplaced Action = "replaced"
	// ActionRetained means the incumbent was kept; the candidate lost.
	ActionRetained Action = "retained"
	// ActionRescored means the incumbent's own rank was re-evaluated.
	ActionRescored Action = "rescored"
	// ActionUnplaced means the candidate could not be considered at all.
	ActionUnplaced Action = "unplaced"
)

// Decision is the assigner's outcome for one candidate.
type Decision struct {
	Action Action         `json:"action"`
	Slot   model.SlotType `json:"slot,omitempty"`
	Rank   int            `json:"rank,omitempty"`

	// DisplacedPersonID is set when Action is ActionReplaced.
	DisplacedPersonID string `json:"displaced_person_id,omitempty"`

	// Reason is set when Action is ActionUnplaced or ActionRetained, for
	// the enrichment-retry queue.
	Reason model.HoldingReason `json:"reason,omitempty"`
}

// Assigner applies the slot-assignment policy. Callers must hold the
// per-company lock: the replace decision is compare-and-swap-style and two
// workers must never run it concurrently for the same company.
type Assigner struct {
	cfg     config.SlotConfig
	nowFunc func() time.Time
}

// NewAssigner creates an Assigner.
func NewAssigner(cfg config.SlotConfig) *Assigner {
	return &Assigner{cfg: cfg, nowFunc: time.Now}
}

// WithNow sets a fixed clock for testing.
func (a *Assigner) WithNow(now func() time.Time) *Assigner {
	a.nowFunc = now
	return a
}

// Assign classifies the person and applies the fill/replace policy against
// the current slot state. The slot is mutated in place on fill or replace;
// the caller persists it atomically with the person update.
func (a *Assigner) Assign(current *model.Slot, person *model.PersonRecord) (Decision, error) {
	if person.CompanyID == "" {
		return Decision{Action: ActionUnplaced, Reason: model.ReasonMissingAnchor}, nil
	}

	class, ok := ClassifyTitle(person.Title)
	if !ok {
		return Decision{Action: ActionUnplaced, Reason: model.ReasonMissingTitle}, nil
	}

	if current == nil {
		return Decision{}, eris.Wrap(ErrInvariant, "nil slot state")
	}
	if current.Type != class.Slot {
		return Decision{}, eris.Wrapf(ErrInvariant, "slot type %s does not match classification %s", current.Type, class.Slot)
	}
	// A filled slot without an occupant (or vice versa) is corrupt state.
	if (current.State == model.SlotFilled) != (current.PersonID != "") {
		return Decision{}, eris.Wrapf(ErrInvariant, "slot %s/%s state %s with person %q",
			current.CompanyID, current.Type, current.State, current.PersonID)
	}

	now := a.nowFunc().UTC()

	// Empty slot: highest-ranked eligible person fills it.
	if current.State != model.SlotFilled {
		a.fill(current, person, class.Rank, now)
		zap.L().Debug("slot: filled",
			zap.String("company_id", person.CompanyID),
			zap.String("slot", string(class.Slot)),
			zap.String("person_id", person.ID),
			zap.Int("rank", class.Rank),
		)
		return Decision{Action: ActionFilled, Slot: class.Slot, Rank: class.Rank}, nil
	}

	// Same person: re-evaluate rank on title change.
	if current.PersonID == person.ID {
		current.Rank = class.Rank
		current.UpdatedAt = now
		person.SeniorityRank = class.Rank
		person.Slot = class.Slot
		return Decision{Action: ActionRescored, Slot: class.Slot, Rank: class.Rank}, nil
	}

	// Occupied: the candidate displaces the incumbent only with a clear
	// seniority advantage. The margin prevents thrashing on near-tied titles.
	if class.Rank >= current.Rank+a.cfg.ReplaceMargin {
		displaced := current.PersonID
		a.fill(current, person, class.Rank, now)
		zap.L().Info("slot: replaced incumbent",
			zap.String("company_id", person.CompanyID),
			zap.String("slot", string(class.Slot)),
			zap.String("displaced", displaced),
			zap.String("person_id", person.ID),
		)
		return Decision{
			Action:            ActionReplaced,
			Slot:              class.Slot,
			Rank:              class.Rank,
			DisplacedPersonID: displaced,
		}, nil
	}

	person.SeniorityRank = class.Rank
	return Decision{
		Action: ActionRetained,
		Slot:   class.Slot,
		Rank:   class.Rank,
		Reason: model.ReasonOutranked,
	}, nil
}

func (a *Assigner) fill(s *model.Slot, person *model.PersonRecord, rank int, now time.Time) {
	s.State = model.SlotFilled
	s.PersonID = person.ID
	s.Rank = rank
	s.FilledAt = &now
	s.UpdatedAt = now

	person.Slot = s.Type
	person.SeniorityRank = rank
}

// CheckInvariant verifies at most one filled slot per (company, slot type).
// A violation is returned as ErrInvariant for operator intervention.
func CheckInvariant(slots []model.Slot) error {
	type key struct {
		company string
		typ     model.SlotType
	}
	seen := make(map[key]bool)
	for _, s := range slots {
		if s.State != model.SlotFilled {
			continue
		}
		k := key{s.CompanyID, s.Type}
		if seen[k] {
			return eris.Wrapf(ErrInvariant, "duplicate filled slot %s/%s", s.CompanyID, s.Type)
		}
		seen[k] = true
	}
	return nil
}
