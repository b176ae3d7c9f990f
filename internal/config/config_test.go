package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/config"
	"casino_ledger/internal/promotion"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "HTTP_ADDR", "DB_CONN_STR", "JWT_SECRET", "BUSINESS_TIMEZONE",
	"CRASH_ENABLED", "CRASH_HOUSE_EDGE", "CRASH_MIN_BET", "CRASH_MAX_BET", "DAILY_BET_LIMIT",
	"DEPOSIT_MIN", "DEPOSIT_MAX", "DEPOSIT_MULTIPLIER_MIN", "DEPOSIT_MULTIPLIER_MAX",
	"VIOLATION_THRESHOLD", "VIOLATION_WINDOW", "REDIS_ADDR",
}

func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "Asia/Karachi", cfg.Timezone)
	assert.True(t, cfg.Crash.Enabled)
	assert.Equal(t, 0.03, cfg.Crash.HouseEdge)
	assert.True(t, cfg.Crash.MinBet.Equal(decimal.NewFromInt(50)))
	assert.True(t, cfg.Crash.DailyLimit.Equal(decimal.NewFromInt(100000)))
	assert.True(t, cfg.Payments.BonusMultiplier.Equal(decimal.NewFromInt(35)))
	assert.Equal(t, 3, cfg.Risk.ViolationThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Risk.ViolationWindow)
	assert.Empty(t, cfg.Redis.Addr)

	defaults := cfg.PromotionDefaults()
	assert.Equal(t, promotion.DefaultFirstDeposit108(), defaults[promotion.KeyFirstDeposit108])
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CRASH_ENABLED", "false")
	t.Setenv("CRASH_HOUSE_EDGE", "0.05")
	t.Setenv("DAILY_BET_LIMIT", "2500.50")
	t.Setenv("DEPOSIT_MULTIPLIER_MAX", "5")
	t.Setenv("VIOLATION_WINDOW", "15m")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.False(t, cfg.Crash.Enabled)
	assert.Equal(t, 0.05, cfg.Crash.HouseEdge)
	assert.True(t, cfg.Crash.DailyLimit.Equal(decimal.RequireFromString("2500.50")))
	assert.Equal(t, int64(5), cfg.Payments.MultiplierMax)
	assert.Equal(t, 15*time.Minute, cfg.Risk.ViolationWindow)
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRASH_HOUSE_EDGE", "0.05")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crash:
  house_edge: 0.01
  min_bet: 10
payments:
  deposit_min: 100
promotions:
  first_deposit_108:
    - min: 100
      max: 999
      bonus_fixed: 150
    - min: 1000
      bonus_min: 200
      bonus_max: 300
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.01, cfg.Crash.HouseEdge)
	assert.True(t, cfg.Crash.MinBet.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.Crash.MaxBet.Equal(decimal.NewFromInt(50000)))
	assert.True(t, cfg.Payments.DepositMin.Equal(decimal.NewFromInt(100)))

	table := cfg.PromotionDefaults()[promotion.KeyFirstDeposit108]
	require.Len(t, table, 2)
	assert.True(t, table[0].BonusFixed.Equal(decimal.NewFromInt(150)))
	assert.Nil(t, table[1].Max)
	assert.Equal(t, int64(300), *table[1].BonusMax)
}

func TestLoadRejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{name: "house edge of one", env: map[string]string{"CRASH_HOUSE_EDGE": "1"}},
		{name: "negative house edge", env: map[string]string{"CRASH_HOUSE_EDGE": "-0.01"}},
		{name: "edge not a number", env: map[string]string{"CRASH_HOUSE_EDGE": "high"}},
		{name: "inverted bet limits", env: map[string]string{"CRASH_MIN_BET": "500", "CRASH_MAX_BET": "100"}},
		{name: "zero daily limit", env: map[string]string{"DAILY_BET_LIMIT": "0"}},
		{name: "inverted deposit bounds", env: map[string]string{"DEPOSIT_MIN": "1000", "DEPOSIT_MAX": "10"}},
		{name: "multiplier below one", env: map[string]string{"DEPOSIT_MULTIPLIER_MIN": "0"}},
		{name: "unknown timezone", env: map[string]string{"BUSINESS_TIMEZONE": "Mars/Olympus"}},
		{name: "bad window", env: map[string]string{"VIOLATION_WINDOW": "soon"}},
		{name: "tier without bonus", yaml: "promotions:\n  first_deposit_108:\n    - min: 100\n"},
		{name: "tier max below min", yaml: "promotions:\n  first_deposit_108:\n    - min: 100\n      max: 50\n      bonus_fixed: 10\n"},
		{name: "table for untiered key", yaml: "promotions:\n  daily_first_deposit_8:\n    - min: 1\n      bonus_fixed: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.yaml != "" {
				path := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
				t.Setenv("CONFIG_FILE", path)
			}

			_, err := config.Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrConfiguration)
		})
	}
}
