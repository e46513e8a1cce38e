// Package config loads application configuration from a YAML file with
// environment-variable overrides, following the same load-then-override-
// then-default sequence used across the rest of this codebase. There is
// no dynamic reconfiguration: a process reads its config once at
// startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds the postgres connection pool settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	Enabled         bool          `yaml:"enabled"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// CacheConfig holds the redis-backed market-view cache settings.
type CacheConfig struct {
	Addr              string `yaml:"addr"`
	DB                int    `yaml:"db"`
	TLS               bool   `yaml:"tls"`
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
}

// HTTPConfig holds the read surface's server and rate-limit settings.
type HTTPConfig struct {
	Port              int      `yaml:"port"`
	AdminAPIKey       string   `yaml:"admin_api_key"`
	CORSOrigins       []string `yaml:"cors_origins"`
	RateLimitRPS      float64  `yaml:"rate_limit_rps"`
	RateLimitBurst    int      `yaml:"rate_limit_burst"`
	DefaultPageSize   int      `yaml:"default_page_size"`
	MaxPageSize       int      `yaml:"max_page_size"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// CandidatesConfig holds the generation engine's per-source caps and
// thresholds.
type CandidatesConfig struct {
	MaxTotal             int     `yaml:"max_total"`
	MaxSameLeague        int     `yaml:"max_same_league"`
	MaxPerOtherTopLeague int     `yaml:"max_per_other_top_league"`
	MaxSocial            int     `yaml:"max_social"`
	MaxUserAttention     int     `yaml:"max_user_attention"`
	MaxConstraintFit     int     `yaml:"max_constraint_fit"`
	MaxRandom            int     `yaml:"max_random"`
	SocialThreshold      float64 `yaml:"social_threshold"`
	AttentionThreshold   float64 `yaml:"attention_threshold"`
	ConstraintFitMinimum float64 `yaml:"constraint_fit_minimum"`
}

// ScoringConfig holds scorer defaults.
type ScoringConfig struct {
	MaxPredictionsPerPlayer int `yaml:"max_predictions_per_player"`
}

// TrainingConfig holds model-training thresholds and determinism knobs.
type TrainingConfig struct {
	ModelStoragePath   string  `yaml:"model_storage_path"`
	MinimumSamples     int     `yaml:"minimum_samples"`
	TestSplitFraction  float64 `yaml:"test_split_fraction"`
	RandomSeed         int64   `yaml:"random_seed"`
}

// DerivationConfig holds the signal-derivation defaults.
type DerivationConfig struct {
	AttentionWindowDays int     `yaml:"attention_window_days"`
	CooccurWindowDays   int     `yaml:"cooccur_window_days"`
	DerivedConfidence   float64 `yaml:"derived_confidence"`
}

// SchedulerConfig holds the daily-pipeline orchestration defaults: how
// many players a run covers, how much worker concurrency
// internal/concurrency is given, and the training/evaluation cadence.
type SchedulerConfig struct {
	Workers              int    `yaml:"workers"`
	HorizonDays          int    `yaml:"horizon_days"`
	ActivePlayersQuery   string `yaml:"active_players_query"`
	ActivePlayersLimit   int    `yaml:"active_players_limit"`
	TrainLookbackDays    int    `yaml:"train_lookback_days"`
	EvalWindowDays       int    `yaml:"eval_window_days"`
	ModelType            string `yaml:"model_type"`
}

// Config is the root application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	HTTP       HTTPConfig       `yaml:"http"`
	Candidates CandidatesConfig `yaml:"candidates"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Training   TrainingConfig   `yaml:"training"`
	Derivation DerivationConfig `yaml:"derivation"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// Load reads configPath (if it exists), applies environment overrides,
// fills unset fields with defaults, and returns the assembled config.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnvOverrides(c *Config) {
	if dsn := os.Getenv("SCOUT_PG_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if enabled := os.Getenv("SCOUT_PG_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Database.Enabled = v
		}
	}
	if maxOpen := os.Getenv("SCOUT_PG_MAX_OPEN_CONNS"); maxOpen != "" {
		if v, err := strconv.Atoi(maxOpen); err == nil {
			c.Database.MaxOpenConns = v
		}
	}
	if redisAddr := os.Getenv("SCOUT_REDIS_ADDR"); redisAddr != "" {
		c.Cache.Addr = redisAddr
	}
	if port := os.Getenv("SCOUT_HTTP_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			c.HTTP.Port = v
		}
	}
	if key := os.Getenv("SCOUT_ADMIN_API_KEY"); key != "" {
		c.HTTP.AdminAPIKey = key
	}
	if origins := os.Getenv("SCOUT_CORS_ORIGINS"); origins != "" {
		c.HTTP.CORSOrigins = strings.Split(origins, ",")
	}
	if seed := os.Getenv("SCOUT_RANDOM_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			c.Training.RandomSeed = v
		}
	}
	if path := os.Getenv("SCOUT_MODEL_STORAGE_PATH"); path != "" {
		c.Training.ModelStoragePath = path
	}
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = d.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = d.Database.MaxIdleConns
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = d.Database.ConnMaxLifetime
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = d.Database.ConnMaxIdleTime
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = d.Database.QueryTimeout
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = d.HTTP.Port
	}
	if c.HTTP.RateLimitRPS == 0 {
		c.HTTP.RateLimitRPS = d.HTTP.RateLimitRPS
	}
	if c.HTTP.RateLimitBurst == 0 {
		c.HTTP.RateLimitBurst = d.HTTP.RateLimitBurst
	}
	if c.HTTP.DefaultPageSize == 0 {
		c.HTTP.DefaultPageSize = d.HTTP.DefaultPageSize
	}
	if c.HTTP.MaxPageSize == 0 {
		c.HTTP.MaxPageSize = d.HTTP.MaxPageSize
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = d.HTTP.RequestTimeout
	}
	if c.Candidates.MaxTotal == 0 {
		c.Candidates = d.Candidates
	}
	if c.Scoring.MaxPredictionsPerPlayer == 0 {
		c.Scoring.MaxPredictionsPerPlayer = d.Scoring.MaxPredictionsPerPlayer
	}
	if c.Training.ModelStoragePath == "" {
		c.Training.ModelStoragePath = d.Training.ModelStoragePath
	}
	if c.Training.MinimumSamples == 0 {
		c.Training.MinimumSamples = d.Training.MinimumSamples
	}
	if c.Training.TestSplitFraction == 0 {
		c.Training.TestSplitFraction = d.Training.TestSplitFraction
	}
	if c.Derivation.AttentionWindowDays == 0 {
		c.Derivation = d.Derivation
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler = d.Scheduler
	}
}

// Default returns the built-in configuration used when no file and no
// environment overrides are present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTLSeconds: 300,
		},
		HTTP: HTTPConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitRPS:    1,
			RateLimitBurst:  100,
			DefaultPageSize: 20,
			MaxPageSize:     100,
			RequestTimeout:  15 * time.Second,
		},
		Candidates: CandidatesConfig{
			MaxTotal:             20,
			MaxSameLeague:        8,
			MaxPerOtherTopLeague: 6,
			MaxSocial:            5,
			MaxUserAttention:     5,
			MaxConstraintFit:     5,
			MaxRandom:            5,
			SocialThreshold:      2.0,
			AttentionThreshold:   3.0,
			ConstraintFitMinimum: 0.3,
		},
		Scoring: ScoringConfig{
			MaxPredictionsPerPlayer: 10,
		},
		Training: TrainingConfig{
			ModelStoragePath:  "./models",
			MinimumSamples:    200,
			TestSplitFraction: 0.2,
			RandomSeed:        42,
		},
		Derivation: DerivationConfig{
			AttentionWindowDays: 14,
			CooccurWindowDays:   30,
			DerivedConfidence:   0.6,
		},
		Scheduler: SchedulerConfig{
			Workers:            8,
			HorizonDays:        90,
			ActivePlayersQuery: "",
			ActivePlayersLimit: 2000,
			TrainLookbackDays:  365,
			EvalWindowDays:     90,
			ModelType:          "logistic",
		},
	}
}

// Save writes c to configPath as YAML.
func Save(c *Config, configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}
	return nil
}

// Validate checks invariants that must hold before the service starts.
func (c *Config) Validate() error {
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required when database is enabled")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot exceed max_open_conns")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive")
	}
	if c.Training.TestSplitFraction <= 0 || c.Training.TestSplitFraction >= 1 {
		return fmt.Errorf("test_split_fraction must be in (0,1)")
	}
	if c.Training.MinimumSamples <= 0 {
		return fmt.Errorf("minimum_samples must be positive")
	}
	if c.Candidates.MaxTotal <= 0 {
		return fmt.Errorf("candidates.max_total must be positive")
	}
	return nil
}
