package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // default_time_zone must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables recognised by Load.
const (
	EnvPrefix  = "RISKENGINE_"
	EnvConfig  = EnvPrefix + "CONFIG"
	EnvDotfile = EnvPrefix + "ENV_FILE"
)

// Load builds a Config by layering defaults, .env, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. .env file (RISKENGINE_ENV_FILE, default ".env"); it only fills unset vars
//  3. YAML file if RISKENGINE_CONFIG is set
//  4. env (prefix RISKENGINE_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	if err := loadDotenv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// RISKENGINE_QUEUE_SIZE -> queue_size; keys stay flat to match koanf tags.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		if _, ok := listKeys[key]; ok {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listKeys are comma separated when read from the environment.
var listKeys = map[string]struct{}{
	"kafka_brokers": {},
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadDotenv() error {
	path := os.Getenv(EnvDotfile)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: dotenv %s: %w", ErrLoadConfig, path, err)
	}
	return nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		add("addr must not be empty")
	}
	if c.WorkerCount < 1 {
		add("worker_count must be positive")
	}
	if c.QueueSize < 1 {
		add("queue_size must be positive")
	}
	if c.ScoreInterval <= 0 {
		add("score_interval must be positive")
	}
	if c.ScoreLookback < 0 {
		add("score_lookback must not be negative")
	}
	if c.MetricsRefreshInterval <= 0 {
		add("metrics_refresh_interval must be positive")
	}
	if c.PassTimeout <= 0 {
		add("pass_timeout must be positive")
	}
	if c.DecayHalfLife <= 0 {
		add("decay_half_life must be positive")
	}
	if c.CooldownWindow < 0 {
		add("cooldown_window must not be negative")
	}
	if !unit(c.AnonymousWeight) || !unit(c.DuplicateWeight) {
		add("anonymous_weight and duplicate_weight must be within [0,1]")
	}
	if c.NeutralScore < 0 || c.NeutralScore > 5 {
		add("neutral_score must be within [0,5]")
	}
	for _, sev := range []string{"low", "medium", "high", "critical"} {
		if _, ok := c.SeverityPenalties[sev]; !ok {
			add("severity_penalties.%s is required", sev)
		}
	}
	if c.SeverityPenalties["low"] > c.SeverityPenalties["medium"] ||
		c.SeverityPenalties["medium"] > c.SeverityPenalties["high"] ||
		c.SeverityPenalties["high"] > c.SeverityPenalties["critical"] {
		add("severity_penalties must not decrease from low to critical")
	}
	var sum float64
	for name, w := range c.ScoreWeights {
		if w < 0 {
			add("score_weights.%s must not be negative", name)
		}
		sum += w
	}
	if sum <= 0 {
		add("score_weights must sum to a positive value")
	}
	if _, err := time.LoadLocation(c.DefaultTimeZone); err != nil {
		add("default_time_zone %q: %v", c.DefaultTimeZone, err)
	}
	if c.GridDecimals < 0 || c.GridDecimals > 6 {
		add("grid_decimals must be within [0,6]")
	}
	if c.TopN < 1 {
		add("top_n must be positive")
	}

	switch c.ReportStore {
	case StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" {
			add("mongo_uri is required when report_store=mongo")
		}
	default:
		add("report_store must be %q or %q", StoreMemory, StoreMongo)
	}
	switch c.ScoreStore {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			add("postgres_dsn is required when score_store=postgres")
		}
	default:
		add("score_store must be %q or %q", StoreMemory, StorePostgres)
	}
	if c.KafkaEnabled && (len(c.KafkaBrokers) == 0 || c.KafkaTopic == "") {
		add("kafka_brokers and kafka_topic are required when kafka_enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }
