package signal

import (
	"sort"
	"time"

	"github.com/sells-group/intent-core/internal/config"
)

// defaultDecaySteps is the table used when score.decay_steps is unset.
// Steps rather than a continuous curve keep recomputation reproducible
// across runs.
var defaultDecaySteps = []config.DecayStep{
	{MaxAgeDays: 7, Factor: 1.0},
	{MaxAgeDays: 30, Factor: 0.5},
	{MaxAgeDays: 90, Factor: 0.25},
}

// DecaySteps returns the configured decay table sorted by age bound, or the
// default table when none is configured.
func DecaySteps(cfg config.ScoreConfig) []config.DecayStep {
	if len(cfg.DecaySteps) == 0 {
		return defaultDecaySteps
	}
	steps := make([]config.DecayStep, len(cfg.DecaySteps))
	copy(steps, cfg.DecaySteps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].MaxAgeDays < steps[j].MaxAgeDays })
	return steps
}

// DecayFactor returns the step-decay multiplier for a signal of the given
// age. Signals older than the last step's bound contribute nothing;
// future-dated signals get full weight.
func DecayFactor(cfg config.ScoreConfig, age time.Duration) float64 {
	if age < 0 {
		return 1.0
	}
	for _, step := range DecaySteps(cfg) {
		if age <= time.Duration(step.MaxAgeDays)*24*time.Hour {
			return step.Factor
		}
	}
	return 0.0
}
