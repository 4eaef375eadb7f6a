// Package config loads application configuration and installs the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Batch          BatchConfig          `yaml:"batch" mapstructure:"batch"`
	Match          MatchConfig          `yaml:"match" mapstructure:"match"`
	Domain         DomainConfig         `yaml:"domain" mapstructure:"domain"`
	Pattern        PatternConfig        `yaml:"pattern" mapstructure:"pattern"`
	Slot           SlotConfig           `yaml:"slot" mapstructure:"slot"`
	Score          ScoreConfig          `yaml:"score" mapstructure:"score"`
	Providers      ProvidersConfig      `yaml:"providers" mapstructure:"providers"`
	Deliverability DeliverabilityConfig `yaml:"deliverability" mapstructure:"deliverability"`
	Filings        FilingsConfig        `yaml:"filings" mapstructure:"filings"`
	Holding        HoldingConfig        `yaml:"holding" mapstructure:"holding"`
	Retry          RetryConfig          `yaml:"retry" mapstructure:"retry"`
	Circuit        CircuitConfig        `yaml:"circuit" mapstructure:"circuit"`
	Monitoring     MonitoringConfig     `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the intake/read API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// MatchConfig holds fuzzy matcher policy.
type MatchConfig struct {
	// FuzzyThreshold is the minimum similarity for a fuzzy candidate.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	// CollisionMargin: if the top two candidate scores are closer than
	// this, the record is routed to holding instead of auto-resolving.
	CollisionMargin float64 `yaml:"collision_margin" mapstructure:"collision_margin"`
	// MaxCandidates bounds the candidate list size.
	MaxCandidates int `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// DomainConfig holds domain resolver settings.
type DomainConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// RecheckHours is how stale a domain record may be before re-resolution.
	RecheckHours int `yaml:"recheck_hours" mapstructure:"recheck_hours"`
	// ParkingSuffixes extends the built-in parked-nameserver table.
	ParkingSuffixes []string `yaml:"parking_suffixes" mapstructure:"parking_suffixes"`
}

// PatternConfig holds pattern waterfall and verifier policy.
type PatternConfig struct {
	// PolicyFile points at the YAML tier/provider policy (optional; the
	// registry order is used when empty).
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
	// ProbeEnabled allows the protocol-level mailbox probe. Off by default
	// since some mail servers penalize probing.
	ProbeEnabled bool `yaml:"probe_enabled" mapstructure:"probe_enabled"`
	// MaxCostUSD caps per-company spend across premium tiers.
	MaxCostUSD float64 `yaml:"max_cost_usd" mapstructure:"max_cost_usd"`
	// ProviderTimeoutSecs bounds each provider call.
	ProviderTimeoutSecs int `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
}

// SlotConfig holds slot assigner policy.
type SlotConfig struct {
	// ReplaceMargin is the minimum rank advantage a candidate needs to
	// displace an incumbent.
	ReplaceMargin int `yaml:"replace_margin" mapstructure:"replace_margin"`
}

// ScoreConfig holds signal aggregation policy.
type ScoreConfig struct {
	// WarmThreshold flags a company as actionable at or above this score.
	WarmThreshold float64 `yaml:"warm_threshold" mapstructure:"warm_threshold"`
	// ShortWindowHours is the dedup window for high-frequency signal kinds.
	ShortWindowHours int `yaml:"short_window_hours" mapstructure:"short_window_hours"`
	// LongWindowDays is the dedup window for filing-derived signal kinds.
	LongWindowDays int `yaml:"long_window_days" mapstructure:"long_window_days"`
	// SourceWeights overrides per-source weight multipliers.
	SourceWeights map[string]float64 `yaml:"source_weights" mapstructure:"source_weights"`
	// DecaySteps overrides the age-decay table. Unset, signals keep full
	// weight for 7 days, half to 30, a quarter to 90, and nothing after.
	DecaySteps []DecayStep `yaml:"decay_steps" mapstructure:"decay_steps"`
}

// DecayStep maps a maximum signal age to a contribution factor.
type DecayStep struct {
	MaxAgeDays int     `yaml:"max_age_days" mapstructure:"max_age_days"`
	Factor     float64 `yaml:"factor" mapstructure:"factor"`
}

// ProviderConfig configures one enrichment provider endpoint.
type ProviderConfig struct {
	Name         string  `yaml:"name" mapstructure:"name"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	Tier         int     `yaml:"tier" mapstructure:"tier"`
	CostPerQuery float64 `yaml:"cost_per_query" mapstructure:"cost_per_query"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ProvidersConfig lists enrichment providers in waterfall order.
type ProvidersConfig struct {
	Enrichment []ProviderConfig `yaml:"enrichment" mapstructure:"enrichment"`
}

// DeliverabilityConfig configures the email verification provider.
type DeliverabilityConfig struct {
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string  `yaml:"api_key" mapstructure:"api_key"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// FilingsConfig configures the filing dataset ingest.
type FilingsConfig struct {
	DatasetURL string `yaml:"dataset_url" mapstructure:"dataset_url"`
	TempDir    string `yaml:"temp_dir" mapstructure:"temp_dir"`
	// LargePlanParticipants is the participant count at which a filing also
	// emits a large_plan signal.
	LargePlanParticipants int `yaml:"large_plan_participants" mapstructure:"large_plan_participants"`
}

// MonitoringConfig configures the background health checker and its
// alert thresholds.
type MonitoringConfig struct {
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// HoldingDepthThreshold alerts when the holding queue backs up past
	// this many entries.
	HoldingDepthThreshold int `yaml:"holding_depth_threshold" mapstructure:"holding_depth_threshold"`
	// StaleScoreHours alerts when the freshest score recompute is older
	// than this.
	StaleScoreHours int `yaml:"stale_score_hours" mapstructure:"stale_score_hours"`
}

// HoldingConfig configures holding-queue retry budgets.
type HoldingConfig struct {
	MaxRetries     int `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffMinutes int `yaml:"backoff_minutes" mapstructure:"backoff_minutes"`
}

// RetryConfig configures external-call retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "intent.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.concurrency", 8)

	v.SetDefault("match.fuzzy_threshold", 0.85)
	v.SetDefault("match.collision_margin", 0.03)
	v.SetDefault("match.max_candidates", 10)

	v.SetDefault("domain.timeout_secs", 5)
	v.SetDefault("domain.recheck_hours", 720)

	v.SetDefault("pattern.probe_enabled", false)
	v.SetDefault("pattern.max_cost_usd", 1.00)
	v.SetDefault("pattern.provider_timeout_secs", 15)

	v.SetDefault("slot.replace_margin", 10)

	v.SetDefault("score.warm_threshold", 25.0)
	v.SetDefault("score.short_window_hours", 24)
	v.SetDefault("score.long_window_days", 365)

	v.SetDefault("deliverability.rate_per_sec", 2.0)

	v.SetDefault("filings.temp_dir", "/tmp/intent-filings")
	v.SetDefault("filings.large_plan_participants", 100)

	v.SetDefault("holding.max_retries", 5)
	v.SetDefault("holding.backoff_minutes", 30)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.holding_depth_threshold", 500)
	v.SetDefault("monitoring.stale_score_hours", 48)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
