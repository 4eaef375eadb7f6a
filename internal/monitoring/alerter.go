package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertHoldingBacklog   AlertType = "holding_backlog"
	AlertHoldingExhausted AlertType = "holding_exhausted"
	AlertStaleScores      AlertType = "stale_scores"
)

// Alert is a single threshold breach to deliver.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates snapshots against configured thresholds and posts
// breaches to a webhook. With no webhook configured, breaches are logged
// and dropped.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts a snapshot triggers.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert

	if t := a.cfg.HoldingDepthThreshold; t > 0 && snap.HoldingDepth >= t {
		alerts = append(alerts, Alert{
			Type:      AlertHoldingBacklog,
			Severity:  "warning",
			Message:   fmt.Sprintf("holding queue depth %d at or above threshold %d", snap.HoldingDepth, t),
			Details: map[string]any{
				"depth":     snap.HoldingDepth,
				"by_reason": snap.HoldingByReason,
			},
			Timestamp: snap.CollectedAt,
		})
	}

	if snap.HoldingExhausted > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertHoldingExhausted,
			Severity:  "info",
			Message:   fmt.Sprintf("%d holding entries exhausted their retry budget and need manual review", snap.HoldingExhausted),
			Details:   map[string]any{"exhausted": snap.HoldingExhausted},
			Timestamp: snap.CollectedAt,
		})
	}

	if h := a.cfg.StaleScoreHours; h > 0 && !snap.NewestScoreAt.IsZero() {
		age := snap.CollectedAt.Sub(snap.NewestScoreAt)
		if age > time.Duration(h)*time.Hour {
			alerts = append(alerts, Alert{
				Type:      AlertStaleScores,
				Severity:  "warning",
				Message:   fmt.Sprintf("newest intent score is %s old, recompute may be stalled", age.Round(time.Hour)),
				Details:   map[string]any{"newest_score_at": snap.NewestScoreAt},
				Timestamp: snap.CollectedAt,
			})
		}
	}

	return alerts
}

// Send delivers one alert to the configured webhook.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if a.cfg.WebhookURL == "" {
		zap.L().Warn("monitoring: alert (no webhook configured)",
			zap.String("type", string(alert.Type)),
			zap.String("message", alert.Message),
		)
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build alert request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post alert")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return eris.Errorf("monitoring: webhook returned %d", resp.StatusCode)
	}
	return nil
}
