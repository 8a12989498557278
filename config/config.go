package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// YAMLConfig mirrors the service config file.
type YAMLConfig struct {
	Server struct {
		Port            int      `yaml:"port"`
		RateLimit       float64  `yaml:"rate_limit"`
		RateBurst       int      `yaml:"rate_burst"`
		CORSOrigins     []string `yaml:"cors_origins"`
		ShutdownTimeout int      `yaml:"shutdown_timeout"`
		MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`

	Backtest struct {
		RiskPct         float64 `yaml:"risk_pct"`
		StartingBalance float64 `yaml:"starting_balance"`
	} `yaml:"backtest"`
}

type Config struct {
	// HTTP listen port
	Port int

	// POST requests per second and burst allowed per client; 0 disables throttling
	RateLimit float64
	RateBurst int

	CORSOrigins     []string
	ShutdownTimeout time.Duration

	// upper bound on POST bodies, JSON and multipart alike
	MaxBodyBytes int64

	// Postgres DSN; empty keeps runs in memory only
	DSN string

	LogLevel       string
	LogDevelopment bool

	// defaults for requests that omit them
	RiskPct         float64
	StartingBalance float64
}

var DefaultConfig = Config{
	Port:            19627,
	RateLimit:       5,
	RateBurst:       10,
	CORSOrigins:     []string{"*"},
	ShutdownTimeout: 10 * time.Second,
	MaxBodyBytes:    16 << 20,
	LogLevel:        "info",
	RiskPct:         1.0,
	StartingBalance: 10000,
}

// LoadFromFile reads a YAML config on top of DefaultConfig.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var yc YAMLConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	config := DefaultConfig
	config.CORSOrigins = append([]string(nil), DefaultConfig.CORSOrigins...)

	if yc.Server.Port > 0 {
		config.Port = yc.Server.Port
	}
	if yc.Server.RateLimit > 0 {
		config.RateLimit = yc.Server.RateLimit
	}
	if yc.Server.RateBurst > 0 {
		config.RateBurst = yc.Server.RateBurst
	}
	if len(yc.Server.CORSOrigins) > 0 {
		config.CORSOrigins = yc.Server.CORSOrigins
	}
	if yc.Server.ShutdownTimeout > 0 {
		config.ShutdownTimeout = time.Duration(yc.Server.ShutdownTimeout) * time.Second
	}
	if yc.Server.MaxBodyBytes > 0 {
		config.MaxBodyBytes = yc.Server.MaxBodyBytes
	}

	config.DSN = yc.Database.DSN

	if yc.Log.Level != "" {
		config.LogLevel = yc.Log.Level
	}
	config.LogDevelopment = yc.Log.Development

	if yc.Backtest.RiskPct > 0 {
		config.RiskPct = yc.Backtest.RiskPct
	}
	if yc.Backtest.StartingBalance > 0 {
		config.StartingBalance = yc.Backtest.StartingBalance
	}

	return &config, nil
}

// GetConfig resolves the service config. Precedence: environment (including
// a .env file in the working directory) > config file > defaults.
func GetConfig(configPath string) *Config {
	config := DefaultConfig

	if configPath != "" {
		if cfg, err := LoadFromFile(configPath); err == nil {
			config = *cfg
		} else {
			fmt.Fprintf(os.Stderr, "warning: cannot load config file %s: %v\n", configPath, err)
		}
	}

	// .env never overrides variables already set in the process environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: cannot load .env: %v\n", err)
	}

	for _, err := range applyEnv(&config) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return &config
}

// applyEnv overrides fields from QUANTEX_* variables. Malformed values are
// reported and skipped.
func applyEnv(config *Config) []error {
	var errs []error

	if v := os.Getenv("QUANTEX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			config.Port = port
		} else {
			errs = append(errs, fmt.Errorf("ignoring QUANTEX_PORT=%q", v))
		}
	}
	if v := os.Getenv("QUANTEX_DSN"); v != "" {
		config.DSN = v
	}
	if v := os.Getenv("QUANTEX_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("QUANTEX_RISK_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			config.RiskPct = f
		} else {
			errs = append(errs, fmt.Errorf("ignoring QUANTEX_RISK_PCT=%q", v))
		}
	}
	if v := os.Getenv("QUANTEX_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			config.RateLimit = f
		} else {
			errs = append(errs, fmt.Errorf("ignoring QUANTEX_RATE_LIMIT=%q", v))
		}
	}
	if v := os.Getenv("QUANTEX_CORS_ORIGINS"); v != "" {
		config.CORSOrigins = splitList(v)
	}
	return errs
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
