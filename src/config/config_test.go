package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 252*865/12, cfg.Volatility.Window)
	assert.Equal(t, 90, cfg.Scheduler.MaxConcurrentFetches)
	assert.Equal(t, 26*7*24*time.Hour, cfg.Scheduler.Lookback())
}

func TestLoad(t *testing.T) {
	t.Run("missing path keeps defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := `
server:
  addr: ":9090"
volatility:
  window: 500
  clamp_window: true
scheduler:
  lookback_weeks: 4
calendar:
  holidays:
    - "2025-06-12"
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, ":9090", cfg.Server.Addr)
		assert.Equal(t, 500, cfg.Volatility.Window)
		assert.True(t, cfg.Volatility.ClampWindow)
		assert.Equal(t, 4*7*24*time.Hour, cfg.Scheduler.Lookback())

		// untouched sections keep their defaults
		assert.Equal(t, 90, cfg.Scheduler.MaxConcurrentFetches)
	})

	t.Run("environment overrides yaml", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "redis.internal:6379")
		t.Setenv("REDIS_DB", "3")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
		assert.Equal(t, 3, cfg.Redis.DB)
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("volatility:\n  window: 1\n"), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unreadable file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestBuildCalendar(t *testing.T) {
	t.Run("default sessions", func(t *testing.T) {
		calendar, err := Default().BuildCalendar()
		require.NoError(t, err)

		holiday := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
		assert.True(t, calendar.IsTradingDay(holiday))
	})

	t.Run("holidays are honored", func(t *testing.T) {
		cfg := Default()
		cfg.Calendar.Holidays = []string{"2025-06-09"}

		calendar, err := cfg.BuildCalendar()
		require.NoError(t, err)
		assert.False(t, calendar.IsTradingDay(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("malformed session time is rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Calendar.TradingStart = "nine"

		_, err := cfg.BuildCalendar()
		assert.Error(t, err)
	})

	t.Run("malformed holiday is rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Calendar.Holidays = []string{"June 9"}

		_, err := cfg.BuildCalendar()
		assert.Error(t, err)
	})
}
