package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Batch.Concurrency)

	assert.InDelta(t, 0.85, cfg.Match.FuzzyThreshold, 0.001)
	assert.InDelta(t, 0.03, cfg.Match.CollisionMargin, 0.001)
	assert.Equal(t, 10, cfg.Match.MaxCandidates)

	assert.Equal(t, 5, cfg.Domain.TimeoutSecs)
	assert.False(t, cfg.Pattern.ProbeEnabled)
	assert.Equal(t, 10, cfg.Slot.ReplaceMargin)

	assert.InDelta(t, 25.0, cfg.Score.WarmThreshold, 0.001)
	assert.Equal(t, 24, cfg.Score.ShortWindowHours)
	assert.Equal(t, 365, cfg.Score.LongWindowDays)

	assert.Equal(t, 5, cfg.Holding.MaxRetries)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/intent
log:
  level: debug
  format: console
match:
  collision_margin: 0.05
slot:
  replace_margin: 15
score:
  warm_threshold: 30
  source_weights:
    filings: 1.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.InDelta(t, 0.05, cfg.Match.CollisionMargin, 0.001)
	assert.Equal(t, 15, cfg.Slot.ReplaceMargin)
	assert.InDelta(t, 30.0, cfg.Score.WarmThreshold, 0.001)
	assert.InDelta(t, 1.5, cfg.Score.SourceWeights["filings"], 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 24, cfg.Score.ShortWindowHours)
	assert.InDelta(t, 0.85, cfg.Match.FuzzyThreshold, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("INTENT_LOG_LEVEL", "warn")
	t.Setenv("INTENT_BATCH_CONCURRENCY", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Batch.Concurrency)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
