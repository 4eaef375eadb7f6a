package resilience

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intent-core/internal/model"
)

// HoldingPolicy bounds the retry behavior of holding-queue entries.
type HoldingPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// NewHoldingEntry parks a raw intake record with a typed reason. The raw
// record is stored verbatim so a retry or a human reviewer sees exactly what
// arrived.
func NewHoldingEntry(kind model.HoldingKind, reason model.HoldingReason, raw any, detail string, policy HoldingPolicy) (*model.HoldingEntry, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, eris.Wrap(err, "resilience: encode holding record")
	}

	now := time.Now().UTC()
	return &model.HoldingEntry{
		ID:           uuid.NewString(),
		Kind:         kind,
		Reason:       reason,
		Raw:          encoded,
		Detail:       detail,
		MaxRetries:   policy.MaxRetries,
		NextRetryAt:  now.Add(policy.Backoff),
		CreatedAt:    now,
		LastFailedAt: now,
	}, nil
}

// RecordRetryFailure advances an entry's retry bookkeeping after another
// failed attempt. Backoff doubles per attempt; exhausted entries keep a
// far-future NextRetryAt and wait for manual review.
func RecordRetryFailure(e *model.HoldingEntry, policy HoldingPolicy, now time.Time) {
	e.RetryCount++
	e.LastFailedAt = now
	if !e.CanRetry() {
		e.NextRetryAt = now.Add(24 * 365 * time.Hour)
		return
	}
	backoff := policy.Backoff
	for i := 0; i < e.RetryCount; i++ {
		backoff *= 2
	}
	e.NextRetryAt = now.Add(backoff)
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
