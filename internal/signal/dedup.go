// Package signal deduplicates, decays, and aggregates intent signals into a
// 0-100 score.
package signal

import (
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/model"
)

// longWindowKinds are filing-derived: a plan filing repeats annually, so the
// same filing surfacing twice inside a year is one event.
var longWindowKinds = map[model.SignalKind]bool{
	model.SignalFilingFound:  true,
	model.SignalLargePlan:    true,
	model.SignalBrokerChange: true,
}

// Window defaults, applied when configuration leaves a window unset.
const (
	defaultShortWindowHours = 24
	defaultLongWindowDays   = 365
)

// WindowFor returns the dedup window for a signal kind. A zero or negative
// configured window falls back to the default so bucket arithmetic never
// divides by zero.
func WindowFor(cfg config.ScoreConfig, kind model.SignalKind) time.Duration {
	if longWindowKinds[kind] {
		days := cfg.LongWindowDays
		if days <= 0 {
			days = defaultLongWindowDays
		}
		return time.Duration(days) * 24 * time.Hour
	}
	hours := cfg.ShortWindowHours
	if hours <= 0 {
		hours = defaultShortWindowHours
	}
	return time.Duration(hours) * time.Hour
}

// DedupKey derives the collapse key for a signal: kind, company, and the
// time bucket the occurrence falls in. Buckets are fixed epoch-aligned
// intervals so the key is reproducible from the signal alone.
func DedupKey(cfg config.ScoreConfig, kind model.SignalKind, companyID string, occurredAt time.Time) string {
	window := WindowFor(cfg, kind)
	bucket := occurredAt.UTC().Unix() / int64(window.Seconds())
	return fmt.Sprintf("%s:%s:%d", kind, companyID, bucket)
}

// Deduplicate collapses signals sharing a dedup key, keeping the earliest
// occurrence of each. Input order does not matter; signals may arrive out of
// order and the result is the same.
func Deduplicate(cfg config.ScoreConfig, signals []model.Signal) []model.Signal {
	sorted := make([]model.Signal, len(signals))
	copy(sorted, signals)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].OccurredAt.Equal(sorted[j].OccurredAt) {
			return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]model.Signal, 0, len(sorted))
	for _, s := range sorted {
		key := s.DedupKey
		if key == "" {
			key = DedupKey(cfg, s.Kind, s.CompanyID, s.OccurredAt)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
