package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Analytics AnalyticsConfig `yaml:"analytics" envconfig:"ANALYTICS"`
	Alerts    AlertsConfig    `yaml:"alerts" envconfig:"ALERTS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/ratepulse.log"`
}

// DatabaseConfig contains the SQLite store configuration
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"PATH" default:"data/ratepulse.db"`
}

// AnalyticsConfig externalizes the calibration constants of the scoring
// engines. Every value here is a domain heuristic, not a derived constant.
type AnalyticsConfig struct {
	// LiquidityLookback is the trailing observation count for liquidity
	// statistics (overnight rate, interbank spread).
	LiquidityLookback int `yaml:"liquidity_lookback" envconfig:"LIQUIDITY_LOOKBACK" default:"60"`
	// CurveLookback is the trailing observation count for curve, auction
	// and turnover statistics.
	CurveLookback int `yaml:"curve_lookback" envconfig:"CURVE_LOOKBACK" default:"252"`
	// WinsorBound clamps z-scores to [-WinsorBound, +WinsorBound] before
	// any percentile transform.
	WinsorBound float64 `yaml:"winsor_bound" envconfig:"WINSOR_BOUND" default:"3.0"`
	// MinFamilies is the minimum number of component families required
	// before the transmission score is computed from data rather than
	// falling back to the neutral score.
	MinFamilies int `yaml:"min_families" envconfig:"MIN_FAMILIES" default:"3"`
	// NeutralScore is emitted while calibrating (cold start).
	NeutralScore float64 `yaml:"neutral_score" envconfig:"NEUTRAL_SCORE" default:"50.0"`
	// BidToCoverCeiling is the heuristic ceiling used to invert auction
	// demand into a stress direction: raw = ceiling - bid_to_cover. It is
	// a calibration choice, not a theoretical bound.
	BidToCoverCeiling float64 `yaml:"bid_to_cover_ceiling" envconfig:"BID_TO_COVER_CEILING" default:"2.0"`

	// Transmission composite weights over the five component families.
	// Renormalized at compute time over whichever families are available.
	TransmissionWeights TransmissionWeights `yaml:"transmission_weights" envconfig:"TRANSMISSION_WEIGHTS"`
	// Stress composite weights. Must sum to 1.0.
	StressWeights StressWeights `yaml:"stress_weights" envconfig:"STRESS_WEIGHTS"`
}

// TransmissionWeights holds the per-family weights of the transmission score
type TransmissionWeights struct {
	Curve     float64 `yaml:"curve" envconfig:"CURVE" default:"0.25"`
	Liquidity float64 `yaml:"liquidity" envconfig:"LIQUIDITY" default:"0.25"`
	Supply    float64 `yaml:"supply" envconfig:"SUPPLY" default:"0.20"`
	Demand    float64 `yaml:"demand" envconfig:"DEMAND" default:"0.15"`
	Policy    float64 `yaml:"policy" envconfig:"POLICY" default:"0.15"`
}

// StressWeights holds the component weights of the stress index
type StressWeights struct {
	Transmission float64 `yaml:"transmission" envconfig:"TRANSMISSION" default:"0.30"`
	Liquidity    float64 `yaml:"liquidity" envconfig:"LIQUIDITY" default:"0.25"`
	Curve        float64 `yaml:"curve" envconfig:"CURVE" default:"0.20"`
	Auction      float64 `yaml:"auction" envconfig:"AUCTION" default:"0.15"`
	Turnover     float64 `yaml:"turnover" envconfig:"TURNOVER" default:"0.10"`
}

// AlertsConfig contains alert engine configuration
type AlertsConfig struct {
	// ThresholdCacheTTL bounds how stale externally edited threshold
	// configuration may be before the engine re-reads the store.
	ThresholdCacheTTL time.Duration `yaml:"threshold_cache_ttl" envconfig:"THRESHOLD_CACHE_TTL" default:"5m"`
}

// Load loads configuration from environment variables and the optional
// config file (ratepulse.yaml next to the working directory, or the path in
// RATEPULSE_CONFIG_FILE).
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("RATEPULSE", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration with all defaults applied and no
// environment or file overrides. Used by CLI tools and tests.
func Default() *Config {
	var cfg Config
	// envconfig applies struct defaults even when no variables are set;
	// an empty prefix guarantees nothing is read from the environment.
	if err := envconfig.Process("RATEPULSE_UNSET", &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence for
// any field the environment actually set; envconfig has already filled env
// values and defaults, so file values only fill fields left at defaults)
func mergeConfigs(fileConfig, envConfig Config) Config {
	merged := envConfig

	if fileConfig.Server.Port != 0 {
		merged.Server.Port = fileConfig.Server.Port
	}
	if fileConfig.Logging.Level != "" {
		merged.Logging.Level = fileConfig.Logging.Level
	}
	if fileConfig.Logging.Format != "" {
		merged.Logging.Format = fileConfig.Logging.Format
	}
	if fileConfig.Logging.FilePath != "" {
		merged.Logging.FilePath = fileConfig.Logging.FilePath
	}
	if fileConfig.Database.Path != "" {
		merged.Database.Path = fileConfig.Database.Path
	}
	// rate_limit.enabled merges from the environment only: a YAML false is
	// indistinguishable from an unset field.
	if fileConfig.Server.RateLimit.RPS != 0 {
		merged.Server.RateLimit.RPS = fileConfig.Server.RateLimit.RPS
	}
	if fileConfig.Server.RateLimit.Burst != 0 {
		merged.Server.RateLimit.Burst = fileConfig.Server.RateLimit.Burst
	}
	if fileConfig.Analytics.LiquidityLookback != 0 {
		merged.Analytics.LiquidityLookback = fileConfig.Analytics.LiquidityLookback
	}
	if fileConfig.Analytics.CurveLookback != 0 {
		merged.Analytics.CurveLookback = fileConfig.Analytics.CurveLookback
	}
	if fileConfig.Analytics.MinFamilies != 0 {
		merged.Analytics.MinFamilies = fileConfig.Analytics.MinFamilies
	}
	if fileConfig.Analytics.WinsorBound != 0 {
		merged.Analytics.WinsorBound = fileConfig.Analytics.WinsorBound
	}
	if fileConfig.Analytics.NeutralScore != 0 {
		merged.Analytics.NeutralScore = fileConfig.Analytics.NeutralScore
	}
	if fileConfig.Analytics.BidToCoverCeiling != 0 {
		merged.Analytics.BidToCoverCeiling = fileConfig.Analytics.BidToCoverCeiling
	}
	// Weight blocks override as a whole: a partial block would silently
	// zero the missing families, so Validate's sum check rejects it.
	if w := fileConfig.Analytics.TransmissionWeights; w != (TransmissionWeights{}) {
		merged.Analytics.TransmissionWeights = w
	}
	if w := fileConfig.Analytics.StressWeights; w != (StressWeights{}) {
		merged.Analytics.StressWeights = w
	}
	if fileConfig.Alerts.ThresholdCacheTTL != 0 {
		merged.Alerts.ThresholdCacheTTL = fileConfig.Alerts.ThresholdCacheTTL
	}

	return merged
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			return fmt.Errorf("rate limit rps must be positive: %f", c.Server.RateLimit.RPS)
		}
		if c.Server.RateLimit.Burst < 1 {
			return fmt.Errorf("rate limit burst must be at least 1: %d", c.Server.RateLimit.Burst)
		}
	}

	if err := c.Analytics.Validate(); err != nil {
		return fmt.Errorf("analytics config: %w", err)
	}

	if c.Alerts.ThresholdCacheTTL <= 0 {
		return fmt.Errorf("threshold cache TTL must be positive: %s", c.Alerts.ThresholdCacheTTL)
	}

	return nil
}

// Validate checks analytics calibration values for consistency
func (a *AnalyticsConfig) Validate() error {
	if a.LiquidityLookback < 2 {
		return fmt.Errorf("liquidity lookback too small: %d", a.LiquidityLookback)
	}
	if a.CurveLookback < 2 {
		return fmt.Errorf("curve lookback too small: %d", a.CurveLookback)
	}
	if a.WinsorBound <= 0 {
		return fmt.Errorf("winsor bound must be positive: %f", a.WinsorBound)
	}
	if a.MinFamilies < 1 || a.MinFamilies > 5 {
		return fmt.Errorf("min families out of range [1,5]: %d", a.MinFamilies)
	}
	if a.NeutralScore < 0 || a.NeutralScore > 100 {
		return fmt.Errorf("neutral score out of range [0,100]: %f", a.NeutralScore)
	}

	sum := a.TransmissionWeights.Curve + a.TransmissionWeights.Liquidity +
		a.TransmissionWeights.Supply + a.TransmissionWeights.Demand +
		a.TransmissionWeights.Policy
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("transmission weights must sum to 1.0, got %f", sum)
	}

	sum = a.StressWeights.Transmission + a.StressWeights.Liquidity +
		a.StressWeights.Curve + a.StressWeights.Auction + a.StressWeights.Turnover
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("stress weights must sum to 1.0, got %f", sum)
	}

	return nil
}

// getConfigFilePath returns the path to the configuration file
func getConfigFilePath() string {
	if path := os.Getenv("RATEPULSE_CONFIG_FILE"); path != "" {
		return path
	}

	candidates := []string{
		"ratepulse.yaml",
		"ratepulse.yml",
		filepath.Join("config", "ratepulse.yaml"),
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "ratepulse.yaml"
}
