package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/papertrader/market"
)

// Config represents the complete session configuration
type Config struct {
	Session  SessionConfig  `json:"session" yaml:"session"`
	Account  AccountConfig  `json:"account" yaml:"account"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Replay   ReplayConfig   `json:"replay" yaml:"replay"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
}

// SessionConfig identifies the session and its active series
type SessionConfig struct {
	ID        string `json:"id" yaml:"id"`
	Symbol    string `json:"symbol" yaml:"symbol"`
	Timeframe string `json:"timeframe" yaml:"timeframe"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// StoreConfig contains candle store parameters. Turning the tick deviation
// guard off is an explicit choice via guard_disabled; guard_percent: 0 is
// rejected so a misconfigured zero never silently falls back to the default.
type StoreConfig struct {
	MaxCandles    int     `json:"max_candles" yaml:"max_candles"`
	GuardPercent  float64 `json:"guard_percent" yaml:"guard_percent"`
	GuardDisabled bool    `json:"guard_disabled,omitempty" yaml:"guard_disabled,omitempty"`
}

// ReplayConfig contains playback parameters
type ReplayConfig struct {
	Step  string  `json:"step" yaml:"step"` // wall-clock per cursor step, e.g. "100ms"
	Speed float64 `json:"speed" yaml:"speed"`
}

// ParseStep converts the step string to time.Duration
func (r ReplayConfig) ParseStep() (time.Duration, error) {
	if r.Step == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Step)
}

// JournalConfig contains trade journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// SnapshotConfig contains session persistence parameters
type SnapshotConfig struct {
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads configuration from a file (JSON or YAML based on content)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Session.ID == "" {
		return fmt.Errorf("session.id is required")
	}
	if c.Session.Symbol == "" {
		return fmt.Errorf("session.symbol is required")
	}
	if _, err := market.ParseTimeframe(c.Session.Timeframe); err != nil {
		return fmt.Errorf("session.timeframe: %w", err)
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Store.MaxCandles < 0 {
		return fmt.Errorf("store.max_candles must not be negative")
	}
	if !c.Store.GuardDisabled && (c.Store.GuardPercent <= 0 || c.Store.GuardPercent > 100) {
		return fmt.Errorf("store.guard_percent must be above 0 and at most 100 (set store.guard_disabled to turn the guard off)")
	}
	if _, err := c.Replay.ParseStep(); err != nil {
		return fmt.Errorf("replay.step: %w", err)
	}
	if c.Replay.Speed < 0 {
		return fmt.Errorf("replay.speed must not be negative")
	}
	if c.Journal.Type != "csv" && c.Journal.Type != "sqlite" {
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if c.Journal.Type == "csv" && c.Journal.TradesFile == "" {
		return fmt.Errorf("journal trades_file required for CSV type")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal db_path required for SQLite type")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ID:        "SIM-001",
			Symbol:    "EUR_USD",
			Timeframe: string(market.M1),
		},
		Account: AccountConfig{
			Currency: "USD",
			Balance:  100000,
		},
		Store: StoreConfig{
			MaxCandles:   market.DefaultMaxCandles,
			GuardPercent: market.DefaultGuardPercent,
		},
		Replay: ReplayConfig{
			Step:  "100ms",
			Speed: 1.0,
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
		},
		Snapshot: SnapshotConfig{
			DBPath: "./session.db",
		},
	}
}
