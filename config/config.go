package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	RiskConfig     RiskConfig     `json:"risk"`
	GuardingConfig GuardingConfig `json:"guarding_line"`
	BudgetConfig   BudgetConfig   `json:"budget"`
	SessionConfig  SessionConfig  `json:"session"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int      `json:"port"`
	Host            string   `json:"host"`
	ProductionMode  bool     `json:"production_mode"`
	AllowedOrigins  []string `json:"allowed_origins"`
	ShutdownTimeout int      `json:"shutdown_timeout"` // seconds
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// RiskConfig holds engine tunables for stops, targets, sizing, and the
// per-bar exit checks.
type RiskConfig struct {
	ATRStopMultiplier      float64 `json:"atr_stop_multiplier"`
	MaxStopPct             float64 `json:"max_stop_pct"`
	EnableMultiTier        bool    `json:"enable_multi_tier_stops"`
	MinRRForEntry          float64 `json:"min_rr_for_entry"`
	EnforceMinRR           bool    `json:"enforce_min_rr"`
	EnableBreakevenStop    bool    `json:"enable_breakeven_stop"`
	BreakevenTriggerR      float64 `json:"breakeven_trigger_r"`
	EnableDivergence       bool    `json:"enable_divergence_detection"`
	EnableMomentumTrailing bool    `json:"enable_momentum_trailing"`
	MinHistoryBars         int     `json:"min_history_bars"`
}

type GuardingConfig struct {
	Enabled        bool    `json:"enabled"`
	ActivationBars int     `json:"activation_bars"`
	BufferPct      float64 `json:"buffer_pct"`
}

// BudgetConfig bounds multi-entry sessions.
type BudgetConfig struct {
	DefaultRiskCapPct float64 `json:"default_risk_cap_pct"`
	DefaultMaxShots   int     `json:"default_max_shots"`
}

type SessionConfig struct {
	DefaultTimeoutHours float64 `json:"default_timeout_hours"`
}

// DatabaseConfig holds PostgreSQL settings for the session journal
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for session snapshots
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", "false") == "true"
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// Risk config
	cfg.RiskConfig.ATRStopMultiplier = getEnvFloatOrDefault("RISK_ATR_STOP_MULTIPLIER", defaultFloat(cfg.RiskConfig.ATRStopMultiplier, 2.0))
	cfg.RiskConfig.MaxStopPct = getEnvFloatOrDefault("RISK_MAX_STOP_PCT", defaultFloat(cfg.RiskConfig.MaxStopPct, 5.0))
	cfg.RiskConfig.EnableMultiTier = getEnvOrDefault("RISK_MULTI_TIER_STOPS", "true") == "true"
	cfg.RiskConfig.MinRRForEntry = getEnvFloatOrDefault("RISK_MIN_RR_FOR_ENTRY", defaultFloat(cfg.RiskConfig.MinRRForEntry, 2.0))
	cfg.RiskConfig.EnforceMinRR = getEnvOrDefault("RISK_ENFORCE_MIN_RR", "true") == "true"
	cfg.RiskConfig.EnableBreakevenStop = getEnvOrDefault("RISK_BREAKEVEN_STOP", "true") == "true"
	cfg.RiskConfig.BreakevenTriggerR = getEnvFloatOrDefault("RISK_BREAKEVEN_TRIGGER_R", defaultFloat(cfg.RiskConfig.BreakevenTriggerR, 1.0))
	cfg.RiskConfig.EnableDivergence = getEnvOrDefault("RISK_DIVERGENCE_DETECTION", "true") == "true"
	cfg.RiskConfig.EnableMomentumTrailing = getEnvOrDefault("RISK_MOMENTUM_TRAILING", "true") == "true"
	cfg.RiskConfig.MinHistoryBars = getEnvIntOrDefault("RISK_MIN_HISTORY_BARS", defaultInt(cfg.RiskConfig.MinHistoryBars, 50))

	// Guarding line config
	cfg.GuardingConfig.Enabled = getEnvOrDefault("GUARDING_LINE_ENABLED", "true") == "true"
	cfg.GuardingConfig.ActivationBars = getEnvIntOrDefault("GUARDING_ACTIVATION_BARS", defaultInt(cfg.GuardingConfig.ActivationBars, 10))
	cfg.GuardingConfig.BufferPct = getEnvFloatOrDefault("GUARDING_BUFFER_PCT", defaultFloat(cfg.GuardingConfig.BufferPct, 0.3))

	// Budget config
	cfg.BudgetConfig.DefaultRiskCapPct = getEnvFloatOrDefault("BUDGET_DEFAULT_RISK_CAP_PCT", defaultFloat(cfg.BudgetConfig.DefaultRiskCapPct, 2.0))
	cfg.BudgetConfig.DefaultMaxShots = getEnvIntOrDefault("BUDGET_DEFAULT_MAX_SHOTS", defaultInt(cfg.BudgetConfig.DefaultMaxShots, 3))

	// Session config
	cfg.SessionConfig.DefaultTimeoutHours = getEnvFloatOrDefault("SESSION_DEFAULT_TIMEOUT_HOURS", defaultFloat(cfg.SessionConfig.DefaultTimeoutHours, 72))

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "false") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Database, "risk_engine"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))
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

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}
