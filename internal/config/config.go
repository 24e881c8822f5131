// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load layers .env, an optional YAML file and RISKENGINE_* env vars on top.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
	"time"
)

// Store driver names.
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// WorkerCount bounds per-bucket fan-out inside a pass.
	WorkerCount int `koanf:"worker_count"`
	// QueueSize bounds the bucket job queue.
	QueueSize int `koanf:"queue_size"`

	// ScoreInterval is the period between scheduled aggregation passes.
	ScoreInterval time.Duration `koanf:"score_interval"`
	// ScoreLookback is how far back a pass reads reports. Zero reads the full
	// history.
	ScoreLookback time.Duration `koanf:"score_lookback"`
	// PassTimeout bounds a single pass, including its store writes.
	PassTimeout time.Duration `koanf:"pass_timeout"`
	// MarkScored writes last_scored_at back to reports after a pass.
	MarkScored bool `koanf:"mark_scored"`

	// AnalyticsTTL is how long a risk snapshot is served from cache.
	AnalyticsTTL time.Duration `koanf:"analytics_ttl"`

	// Ingestion filter weighting.
	CooldownWindow  time.Duration `koanf:"cooldown_window"`
	CooldownSize    int           `koanf:"cooldown_size"`
	AnonymousWeight float64       `koanf:"anonymous_weight"`
	DuplicateWeight float64       `koanf:"duplicate_weight"`

	// Score aggregation.
	DecayHalfLife     time.Duration      `koanf:"decay_half_life"`
	SeverityPenalties map[string]float64 `koanf:"severity_penalties"`
	ScoreWeights      map[string]float64 `koanf:"score_weights"`
	NeutralScore      float64            `koanf:"neutral_score"`

	// DefaultTimeZone is used for routes without a zone of their own.
	DefaultTimeZone string `koanf:"default_time_zone"`

	// Risk analytics.
	GridDecimals         int     `koanf:"grid_decimals"`
	HotspotSigma         float64 `koanf:"hotspot_sigma"`
	TopN                 int     `koanf:"top_n"`
	MinReportsForRanking int     `koanf:"min_reports_for_ranking"`

	// Report and route store.
	ReportStore string `koanf:"report_store"`
	MongoURI    string `koanf:"mongo_uri"`
	MongoDB     string `koanf:"mongo_db"`

	// Score store.
	ScoreStore  string `koanf:"score_store"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// Score change events.
	KafkaEnabled bool     `koanf:"kafka_enabled"`
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`

	// Metrics.
	MetricsRefreshInterval time.Duration     `koanf:"metrics_refresh_interval"`
	MetricsLabels          map[string]string `koanf:"metrics_labels"`

	// Error tracking; empty DSN disables delivery.
	SentryDSN         string `koanf:"sentry_dsn"`
	SentryEnvironment string `koanf:"sentry_environment"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		Addr:          ":9080",
		WorkerCount:   runtime.NumCPU(),
		QueueSize:     10_000,
		ScoreInterval: 15 * time.Minute,
		PassTimeout:   5 * time.Minute,
		AnalyticsTTL:  5 * time.Minute,

		MetricsRefreshInterval: 10 * time.Second,

		CooldownWindow:  10 * time.Minute,
		CooldownSize:    100_000,
		AnonymousWeight: 0.5,
		DuplicateWeight: 0.1,

		DecayHalfLife: 14 * 24 * time.Hour,
		SeverityPenalties: map[string]float64{
			"low":      0.2,
			"medium":   0.5,
			"high":     1.0,
			"critical": 2.0,
		},
		ScoreWeights: map[string]float64{
			"reliability": 0.3,
			"safety":      0.35,
			"punctuality": 0.2,
			"comfort":     0.15,
		},
		NeutralScore: 3.0,

		DefaultTimeZone: "Africa/Nairobi",

		GridDecimals:         2,
		HotspotSigma:         1.5,
		TopN:                 10,
		MinReportsForRanking: 5,

		ReportStore: StoreMemory,
		MongoDB:     "commutewatch",
		ScoreStore:  StoreMemory,

		KafkaTopic: "route-scores",

		SentryEnvironment: "development",
	}
}
