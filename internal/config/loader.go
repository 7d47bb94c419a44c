package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SUREBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SUREBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Accounts ──
	setStr(&cfg.Accounts.VaultPath, "SUREBOT_ACCOUNTS_VAULT_PATH")
	setStr(&cfg.Accounts.VaultPassword, "SUREBOT_ACCOUNTS_VAULT_PASSWORD")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.MinProfitPct, "SUREBOT_ARBITRAGE_MIN_PROFIT_PCT")
	setFloat64(&cfg.Arbitrage.MaxProfitPct, "SUREBOT_ARBITRAGE_MAX_PROFIT_PCT")
	setInt(&cfg.Arbitrage.MaxMinuteHT, "SUREBOT_ARBITRAGE_MAX_MINUTE_HT")
	setInt(&cfg.Arbitrage.MaxMinuteFT, "SUREBOT_ARBITRAGE_MAX_MINUTE_FT")
	setStr(&cfg.Arbitrage.MatchFilter, "SUREBOT_ARBITRAGE_MATCH_FILTER")
	setStringSlice(&cfg.Arbitrage.EnabledMarkets, "SUREBOT_ARBITRAGE_ENABLED_MARKETS")

	// ── Execution ──
	setDuration(&cfg.Execution.AcceptWait, "SUREBOT_EXECUTION_ACCEPT_WAIT")
	setDuration(&cfg.Execution.PollInterval, "SUREBOT_EXECUTION_POLL_INTERVAL")
	setDuration(&cfg.Execution.SettleDelay, "SUREBOT_EXECUTION_SETTLE_DELAY")
	setDuration(&cfg.Execution.DedupTTL, "SUREBOT_EXECUTION_DEDUP_TTL")

	// ── Session ──
	setDuration(&cfg.Session.Validity, "SUREBOT_SESSION_VALIDITY")
	setDuration(&cfg.Session.MaxIdle, "SUREBOT_SESSION_MAX_IDLE")
	setDuration(&cfg.Session.SweepInterval, "SUREBOT_SESSION_SWEEP_INTERVAL")

	// ── Feed ──
	setStr(&cfg.Feed.Source, "SUREBOT_FEED_SOURCE")
	setStr(&cfg.Feed.WsURL, "SUREBOT_FEED_WS_URL")
	setStringSlice(&cfg.Feed.Markets, "SUREBOT_FEED_MARKETS")

	// ── Registry ──
	setDuration(&cfg.Registry.FreshnessWindow, "SUREBOT_REGISTRY_FRESHNESS_WINDOW")
	setDuration(&cfg.Registry.HeartbeatInterval, "SUREBOT_REGISTRY_HEARTBEAT_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SUREBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SUREBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SUREBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SUREBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SUREBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SUREBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SUREBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SUREBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SUREBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SUREBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SUREBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SUREBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SUREBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SUREBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SUREBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SUREBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SUREBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SUREBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SUREBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SUREBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SUREBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SUREBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SUREBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SUREBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SUREBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SUREBOT_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SUREBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SUREBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SUREBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SUREBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SUREBOT_MODE")
	setBool(&cfg.Paper, "SUREBOT_PAPER")
	setStr(&cfg.LogLevel, "SUREBOT_LOG_LEVEL")
	setStr(&cfg.WorkerID, "SUREBOT_WORKER_ID")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
