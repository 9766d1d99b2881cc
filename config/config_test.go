package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "SIM-001", cfg.Session.ID)
	assert.InDelta(t, 100000, cfg.Account.Balance, 1e-9)
}

func TestSaveAndLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Session.Symbol = "AAPL"
	cfg.Store.GuardPercent = 2.5
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", loaded.Session.Symbol)
	assert.InDelta(t, 2.5, loaded.Store.GuardPercent, 1e-9)

	step, err := loaded.Replay.ParseStep()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, step)
}

func TestSaveAndLoadJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Journal.Type = "sqlite"
	cfg.Journal.DBPath = "./journal.db"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.Journal.Type)
	assert.Equal(t, "./journal.db", loaded.Journal.DBPath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Session.Timeframe = "M7"
	require.NoError(t, cfg.SaveToFile(path))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidateGuardDisabled(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Store.GuardDisabled = true
	cfg.Store.GuardPercent = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing session id", func(c *Config) { c.Session.ID = "" }},
		{"missing symbol", func(c *Config) { c.Session.Symbol = "" }},
		{"bad timeframe", func(c *Config) { c.Session.Timeframe = "M2" }},
		{"zero balance", func(c *Config) { c.Account.Balance = 0 }},
		{"negative max candles", func(c *Config) { c.Store.MaxCandles = -1 }},
		{"guard over 100", func(c *Config) { c.Store.GuardPercent = 150 }},
		{"zero guard without disable", func(c *Config) { c.Store.GuardPercent = 0 }},
		{"bad replay step", func(c *Config) { c.Replay.Step = "fast" }},
		{"negative speed", func(c *Config) { c.Replay.Speed = -1 }},
		{"bad journal type", func(c *Config) { c.Journal.Type = "kafka" }},
		{"csv without path", func(c *Config) { c.Journal.TradesFile = "" }},
		{"sqlite without path", func(c *Config) {
			c.Journal.Type = "sqlite"
			c.Journal.DBPath = ""
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
