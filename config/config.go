package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration for the decision engine
type Config struct {
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	RiskConfig     RiskConfig     `json:"risk"`
	StrategyConfig StrategyConfig `json:"strategy"`
	ScannerConfig  ScannerConfig  `json:"scanner"`
	MetricsConfig  MetricsConfig  `json:"metrics"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis cache settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"` // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"`
}

// RiskConfig holds portfolio risk limits. Percentages are of portfolio value.
type RiskConfig struct {
	Profile            string  `json:"profile"`              // conservative, balanced, aggressive
	MaxPositionSize    float64 `json:"max_position_size"`    // % of portfolio per position
	MaxDailyLoss       float64 `json:"max_daily_loss"`       // % daily loss before blocking trades
	MaxDrawdown        float64 `json:"max_drawdown"`         // % peak-to-trough limit
	MaxConcentration   float64 `json:"max_concentration"`    // % of portfolio in one token
	StopLossPercent    float64 `json:"stop_loss_percent"`    // forced exit on loss
	TakeProfitPercent  float64 `json:"take_profit_percent"`  // forced exit on gain
	MaxOpenPositions   int     `json:"max_open_positions"`
	MonitoringInterval time.Duration `json:"-"`
}

// StrategyConfig holds pattern detection thresholds and cycle timing
type StrategyConfig struct {
	MinConfidence       float64       `json:"min_confidence"`        // static floor, 0-100
	BaselineThreshold   float64       `json:"baseline_threshold"`    // dynamic threshold baseline
	MinPricePoints      int           `json:"min_price_points"`      // minimum window for analysis
	DetectionInterval   time.Duration `json:"-"`
	MonitoringInterval  time.Duration `json:"-"`
	PerformanceInterval time.Duration `json:"-"`
	EnsembleMinPatterns int           `json:"ensemble_min_patterns"` // patterns needed for ensemble
	EnsembleThreshold   float64       `json:"ensemble_threshold"`    // min combined score to emit
}

// ScannerConfig holds alert scanner settings
type ScannerConfig struct {
	Enabled      bool          `json:"enabled"`
	ScanInterval time.Duration `json:"-"`
	WorkerCount  int           `json:"worker_count"`
}

// MetricsConfig holds Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"` // listen address for /metrics
}

// Load reads configuration from an optional config.json, then applies
// environment variable overrides (which take precedence)
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyRiskProfile(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "postgres")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", "token_trading")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// Risk config
	cfg.RiskConfig.Profile = getEnvOrDefault("RISK_PROFILE", "balanced")
	cfg.RiskConfig.MaxPositionSize = getEnvFloatOrDefault("RISK_MAX_POSITION_SIZE", 0)
	cfg.RiskConfig.MaxDailyLoss = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS", 0)
	cfg.RiskConfig.MaxDrawdown = getEnvFloatOrDefault("RISK_MAX_DRAWDOWN", 0)
	cfg.RiskConfig.MaxConcentration = getEnvFloatOrDefault("RISK_MAX_CONCENTRATION", 0)
	cfg.RiskConfig.StopLossPercent = getEnvFloatOrDefault("RISK_STOP_LOSS", 0)
	cfg.RiskConfig.TakeProfitPercent = getEnvFloatOrDefault("RISK_TAKE_PROFIT", 0)
	cfg.RiskConfig.MaxOpenPositions = getEnvIntOrDefault("RISK_MAX_OPEN_POSITIONS", 0)
	cfg.RiskConfig.MonitoringInterval = getEnvDurationOrDefault("RISK_MONITORING_INTERVAL", 30*time.Second)

	// Strategy config
	cfg.StrategyConfig.MinConfidence = getEnvFloatOrDefault("STRATEGY_MIN_CONFIDENCE", 65)
	cfg.StrategyConfig.BaselineThreshold = getEnvFloatOrDefault("STRATEGY_BASELINE_THRESHOLD", 75)
	cfg.StrategyConfig.MinPricePoints = getEnvIntOrDefault("STRATEGY_MIN_PRICE_POINTS", 50)
	cfg.StrategyConfig.DetectionInterval = getEnvDurationOrDefault("STRATEGY_DETECTION_INTERVAL", 2*time.Minute)
	cfg.StrategyConfig.MonitoringInterval = getEnvDurationOrDefault("STRATEGY_MONITORING_INTERVAL", 15*time.Second)
	cfg.StrategyConfig.PerformanceInterval = getEnvDurationOrDefault("STRATEGY_PERFORMANCE_INTERVAL", 2*time.Minute)
	cfg.StrategyConfig.EnsembleMinPatterns = getEnvIntOrDefault("STRATEGY_ENSEMBLE_MIN_PATTERNS", 3)
	cfg.StrategyConfig.EnsembleThreshold = getEnvFloatOrDefault("STRATEGY_ENSEMBLE_THRESHOLD", 80)

	// Scanner config
	cfg.ScannerConfig.Enabled = getEnvOrDefault("SCANNER_ENABLED", "true") == "true"
	cfg.ScannerConfig.ScanInterval = getEnvDurationOrDefault("SCANNER_INTERVAL", time.Minute)
	cfg.ScannerConfig.WorkerCount = getEnvIntOrDefault("SCANNER_WORKER_COUNT", 4)

	// Metrics config
	cfg.MetricsConfig.Enabled = getEnvOrDefault("METRICS_ENABLED", "true") == "true"
	cfg.MetricsConfig.Address = getEnvOrDefault("METRICS_ADDRESS", ":9090")
}

// riskProfiles are the named per-portfolio presets. A zero value in the
// loaded config means "use the profile's value"; explicit settings win.
var riskProfiles = map[string]RiskConfig{
	"conservative": {
		MaxPositionSize:   10,
		MaxDailyLoss:      3,
		MaxDrawdown:       10,
		MaxConcentration:  15,
		StopLossPercent:   5,
		TakeProfitPercent: 10,
		MaxOpenPositions:  3,
	},
	"balanced": {
		MaxPositionSize:   15,
		MaxDailyLoss:      5,
		MaxDrawdown:       15,
		MaxConcentration:  25,
		StopLossPercent:   8,
		TakeProfitPercent: 15,
		MaxOpenPositions:  5,
	},
	"aggressive": {
		MaxPositionSize:   25,
		MaxDailyLoss:      10,
		MaxDrawdown:       25,
		MaxConcentration:  40,
		StopLossPercent:   12,
		TakeProfitPercent: 25,
		MaxOpenPositions:  8,
	},
}

func applyRiskProfile(cfg *Config) {
	profile, ok := riskProfiles[cfg.RiskConfig.Profile]
	if !ok {
		profile = riskProfiles["balanced"]
		cfg.RiskConfig.Profile = "balanced"
	}

	if cfg.RiskConfig.MaxPositionSize == 0 {
		cfg.RiskConfig.MaxPositionSize = profile.MaxPositionSize
	}
	if cfg.RiskConfig.MaxDailyLoss == 0 {
		cfg.RiskConfig.MaxDailyLoss = profile.MaxDailyLoss
	}
	if cfg.RiskConfig.MaxDrawdown == 0 {
		cfg.RiskConfig.MaxDrawdown = profile.MaxDrawdown
	}
	if cfg.RiskConfig.MaxConcentration == 0 {
		cfg.RiskConfig.MaxConcentration = profile.MaxConcentration
	}
	if cfg.RiskConfig.StopLossPercent == 0 {
		cfg.RiskConfig.StopLossPercent = profile.StopLossPercent
	}
	if cfg.RiskConfig.TakeProfitPercent == 0 {
		cfg.RiskConfig.TakeProfitPercent = profile.TakeProfitPercent
	}
	if cfg.RiskConfig.MaxOpenPositions == 0 {
		cfg.RiskConfig.MaxOpenPositions = profile.MaxOpenPositions
	}
}

// RiskProfile returns the named preset, falling back to balanced
func RiskProfile(name string) RiskConfig {
	if profile, ok := riskProfiles[name]; ok {
		profile.Profile = name
		return profile
	}
	profile := riskProfiles["balanced"]
	profile.Profile = "balanced"
	return profile
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
