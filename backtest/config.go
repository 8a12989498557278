package backtest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quantex/feed"
)

type YAMLConfig struct {
	Backtest struct {
		Symbol          string  `yaml:"symbol"`
		Timeframe       string  `yaml:"timeframe"`
		RiskPct         float64 `yaml:"risk_pct"`
		StartingBalance float64 `yaml:"starting_balance"`
		Start           string  `yaml:"start"`
		End             string  `yaml:"end"`
	} `yaml:"backtest"`

	Data feed.Source `yaml:"data"`
}

type RunConfig struct {
	Symbol          string
	Timeframe       string
	RiskPct         float64
	StartingBalance float64
	// Start is inclusive, End exclusive. A zero value leaves that side open.
	Start time.Time
	End   time.Time

	Data feed.Source
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Symbol:          "BTC/USDT",
		Timeframe:       "15m",
		RiskPct:         DefaultRiskPct,
		StartingBalance: DefaultStartingBalance,
	}
}

func LoadRunConfig(path string) (RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read config: %w", err)
	}
	return ParseRunConfig(raw)
}

func ParseRunConfig(raw []byte) (RunConfig, error) {
	var yc YAMLConfig
	if err := yaml.Unmarshal(raw, &yc); err != nil {
		return RunConfig{}, fmt.Errorf("parse yaml: %w", err)
	}

	cfg := DefaultRunConfig()
	if yc.Backtest.Symbol != "" {
		cfg.Symbol = yc.Backtest.Symbol
	}
	if yc.Backtest.Timeframe != "" {
		cfg.Timeframe = yc.Backtest.Timeframe
	}
	// Range is the caller's concern; only an unset value falls back.
	if yc.Backtest.RiskPct != 0 {
		cfg.RiskPct = yc.Backtest.RiskPct
	}
	if yc.Backtest.StartingBalance > 0 {
		cfg.StartingBalance = yc.Backtest.StartingBalance
	}
	cfg.Data = yc.Data

	if yc.Backtest.Start != "" {
		t, err := time.ParseInLocation("2006-01-02", yc.Backtest.Start, time.UTC)
		if err != nil {
			return RunConfig{}, fmt.Errorf("invalid backtest.start: %w", err)
		}
		cfg.Start = t
	}
	if yc.Backtest.End != "" {
		t, err := time.ParseInLocation("2006-01-02", yc.Backtest.End, time.UTC)
		if err != nil {
			return RunConfig{}, fmt.Errorf("invalid backtest.end: %w", err)
		}
		// end names the last day included.
		cfg.End = t.AddDate(0, 0, 1)
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() && !cfg.End.After(cfg.Start) {
		return RunConfig{}, fmt.Errorf("backtest.end before backtest.start")
	}
	return cfg, nil
}
