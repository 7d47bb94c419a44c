package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Feed.WsURL = "wss://quotes.example/ws"
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Arbitrage.MaxProfitPct = 0.5 // below min
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "max_profit_pct")
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestValidateRequiresAccountsForExecution(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "execute"
	cfg.Feed.WsURL = "wss://quotes.example/ws"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts:")

	// Paper mode places nothing and may run without accounts.
	cfg.Paper = true
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	content := `
mode = "monitor"
log_level = "debug"

[feed]
source = "ws"
ws_url = "wss://quotes.example/ws"

[execution]
accept_wait = "45s"

[[arbitrage.tiers]]
name = "tier1"
label = "major"
bet_amount = 2000.0
priority = 3
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SUREBOT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("SUREBOT_EXECUTION_SETTLE_DELAY", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Execution.AcceptWait.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Execution.SettleDelay.Duration)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)

	// File tiers replace the defaults entirely.
	require.Len(t, cfg.Arbitrage.Tiers, 1)
	assert.Equal(t, 2000.0, cfg.Arbitrage.Tiers[0].BetAmount)

	// Untouched sections keep their defaults.
	assert.Equal(t, time.Second, cfg.Execution.PollInterval.Duration)
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Notify.TelegramToken = "tok"
	cfg.Accounts.VaultPassword = "vault-pw"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Accounts.VaultPassword)

	// Original is untouched.
	assert.Equal(t, "secret", cfg.Postgres.Password)
}
