// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/aryasaputra/surebot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SUREBOT_* environment variables.
type Config struct {
	Accounts  AccountsConfig  `toml:"accounts"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Execution ExecutionConfig `toml:"execution"`
	Session   SessionConfig   `toml:"session"`
	Proxies   []ProxyConfig   `toml:"proxies"`
	Feed      FeedConfig      `toml:"feed"`
	Registry  RegistryConfig  `toml:"registry"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	Paper     bool            `toml:"paper"`
	LogLevel  string          `toml:"log_level"`
	WorkerID  string          `toml:"worker_id"`
}

// AccountsConfig resolves bookmaker account credentials. Inline entries and
// the encrypted vault file are mutually exclusive.
type AccountsConfig struct {
	Inline        []domain.Credentials `toml:"inline"`
	VaultPath     string               `toml:"vault_path"`
	VaultPassword string               `toml:"vault_password"`
}

// TierConfig is one stake-size bracket.
type TierConfig struct {
	Name      string  `toml:"name"`
	Label     string  `toml:"label"`
	BetAmount float64 `toml:"bet_amount"`
	Priority  int     `toml:"priority"`
}

// ArbitrageConfig holds the evaluator policy: profit band, match-clock
// cutoffs, market toggles, and stake tiers.
type ArbitrageConfig struct {
	MinProfitPct   float64             `toml:"min_profit_pct"`
	MaxProfitPct   float64             `toml:"max_profit_pct"`
	MaxMinuteHT    int                 `toml:"max_minute_ht"`
	MaxMinuteFT    int                 `toml:"max_minute_ft"`
	MatchFilter    string              `toml:"match_filter"`
	EnabledMarkets []string            `toml:"enabled_markets"`
	Tiers          []TierConfig        `toml:"tiers"`
	TierLeagues    map[string][]string `toml:"tier_leagues"`
}

// ExecutionConfig holds two-leg placement timing parameters.
type ExecutionConfig struct {
	AcceptWait   duration `toml:"accept_wait"`
	PollInterval duration `toml:"poll_interval"`
	SettleDelay  duration `toml:"settle_delay"`
	DedupTTL     duration `toml:"dedup_ttl"`
}

// SessionConfig holds bookmaker session pool parameters.
type SessionConfig struct {
	Validity      duration `toml:"validity"`
	MaxIdle       duration `toml:"max_idle"`
	SweepInterval duration `toml:"sweep_interval"`
}

// ProxyConfig is one outbound proxy endpoint.
type ProxyConfig struct {
	Address  string `toml:"address"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// FeedConfig holds quote ingestion parameters. Source selects between the
// bookmaker websocket feed and the Redis signal bus.
type FeedConfig struct {
	Source  string   `toml:"source"` // "ws" or "bus"
	WsURL   string   `toml:"ws_url"`
	Markets []string `toml:"markets"`
}

// RegistryConfig holds worker fleet tracking parameters.
type RegistryConfig struct {
	FreshnessWindow   duration `toml:"freshness_window"`
	HeartbeatInterval duration `toml:"heartbeat_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds execution cold-storage parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Arbitrage: ArbitrageConfig{
			MinProfitPct: 1.0,
			MaxProfitPct: 10.0,
			MaxMinuteHT:  40,
			MaxMinuteFT:  85,
			MatchFilter:  "all",
			EnabledMarkets: []string{
				"ft_hdp", "ft_ou", "ht_hdp", "ht_ou",
			},
			Tiers: []TierConfig{
				{Name: "tier1", Label: "major", BetAmount: 1000, Priority: 3},
				{Name: "tier2", Label: "secondary", BetAmount: 500, Priority: 2},
				{Name: "tier3", Label: "minor", BetAmount: 200, Priority: 1},
			},
			TierLeagues: map[string][]string{},
		},
		Execution: ExecutionConfig{
			AcceptWait:   duration{30 * time.Second},
			PollInterval: duration{time.Second},
			SettleDelay:  duration{500 * time.Millisecond},
			DedupTTL:     duration{2 * time.Minute},
		},
		Session: SessionConfig{
			Validity:      duration{24 * time.Hour},
			MaxIdle:       duration{2 * time.Hour},
			SweepInterval: duration{5 * time.Minute},
		},
		Feed: FeedConfig{
			Source:  "ws",
			Markets: []string{"ft_hdp", "ft_ou", "ht_hdp", "ht_ou"},
		},
		Registry: RegistryConfig{
			FreshnessWindow:   duration{90 * time.Second},
			HeartbeatInterval: duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "surebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "surebot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"execution_completed", "opportunity_evaluated"},
		},
		Mode:     "full",
		Paper:    false,
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"execute": true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validMatchFilters enumerates the accepted values for arbitrage.match_filter.
var validMatchFilters = map[string]bool{
	"all":      true,
	"prematch": true,
	"live":     true,
}

// validMarkets enumerates the accepted enabled_markets entries.
var validMarkets = map[string]bool{
	"ft_hdp": true,
	"ft_ou":  true,
	"ht_hdp": true,
	"ht_ou":  true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: execute, monitor, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Accounts. Execution modes need at least one credential source; paper
	// mode places nothing and may run without accounts.
	needsAccounts := (c.Mode == "execute" || c.Mode == "full") && !c.Paper
	inline := len(c.Accounts.Inline) > 0
	vault := c.Accounts.VaultPath != ""
	if inline && vault {
		errs = append(errs, "accounts: inline entries and vault_path are mutually exclusive")
	}
	if needsAccounts && !inline && !vault {
		errs = append(errs, "accounts: either inline entries or vault_path must be set for mode "+c.Mode)
	}
	if vault && c.Accounts.VaultPassword == "" {
		errs = append(errs, "accounts: vault_password is required when vault_path is set")
	}
	for i, a := range c.Accounts.Inline {
		if a.AccountID == "" {
			errs = append(errs, fmt.Sprintf("accounts: inline entry %d is missing account_id", i))
		}
		if a.Provider == "" {
			errs = append(errs, fmt.Sprintf("accounts: inline entry %d is missing provider", i))
		}
	}

	// Arbitrage policy
	if c.Arbitrage.MinProfitPct < 0 {
		errs = append(errs, "arbitrage: min_profit_pct must be >= 0")
	}
	if c.Arbitrage.MaxProfitPct <= c.Arbitrage.MinProfitPct {
		errs = append(errs, "arbitrage: max_profit_pct must exceed min_profit_pct")
	}
	if c.Arbitrage.MaxMinuteHT <= 0 || c.Arbitrage.MaxMinuteHT > 45 {
		errs = append(errs, fmt.Sprintf("arbitrage: max_minute_ht must be 1-45, got %d", c.Arbitrage.MaxMinuteHT))
	}
	if c.Arbitrage.MaxMinuteFT <= 0 || c.Arbitrage.MaxMinuteFT > 90 {
		errs = append(errs, fmt.Sprintf("arbitrage: max_minute_ft must be 1-90, got %d", c.Arbitrage.MaxMinuteFT))
	}
	if !validMatchFilters[strings.ToLower(c.Arbitrage.MatchFilter)] {
		errs = append(errs, fmt.Sprintf("arbitrage: unknown match_filter %q (valid: all, prematch, live)", c.Arbitrage.MatchFilter))
	}
	if len(c.Arbitrage.EnabledMarkets) == 0 {
		errs = append(errs, "arbitrage: enabled_markets must not be empty")
	}
	for _, m := range c.Arbitrage.EnabledMarkets {
		if !validMarkets[m] {
			errs = append(errs, fmt.Sprintf("arbitrage: unknown market %q (valid: ft_hdp, ft_ou, ht_hdp, ht_ou)", m))
		}
	}
	if len(c.Arbitrage.Tiers) == 0 {
		errs = append(errs, "arbitrage: at least one stake tier must be configured")
	}
	tierNames := make(map[string]bool, len(c.Arbitrage.Tiers))
	for i, t := range c.Arbitrage.Tiers {
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("arbitrage: tier %d is missing a name", i))
			continue
		}
		if tierNames[t.Name] {
			errs = append(errs, fmt.Sprintf("arbitrage: duplicate tier name %q", t.Name))
		}
		tierNames[t.Name] = true
		if t.BetAmount <= 0 {
			errs = append(errs, fmt.Sprintf("arbitrage: tier %q bet_amount must be > 0", t.Name))
		}
	}
	for name := range c.Arbitrage.TierLeagues {
		if !tierNames[name] {
			errs = append(errs, fmt.Sprintf("arbitrage: tier_leagues references unknown tier %q", name))
		}
	}

	// Execution timings
	if c.Execution.AcceptWait.Duration <= 0 {
		errs = append(errs, "execution: accept_wait must be > 0")
	}
	if c.Execution.PollInterval.Duration <= 0 {
		errs = append(errs, "execution: poll_interval must be > 0")
	}
	if c.Execution.PollInterval.Duration > c.Execution.AcceptWait.Duration {
		errs = append(errs, "execution: poll_interval must not exceed accept_wait")
	}
	if c.Execution.SettleDelay.Duration < 0 {
		errs = append(errs, "execution: settle_delay must be >= 0")
	}
	if c.Execution.DedupTTL.Duration <= 0 {
		errs = append(errs, "execution: dedup_ttl must be > 0")
	}

	// Session pool
	if c.Session.Validity.Duration <= 0 {
		errs = append(errs, "session: validity must be > 0")
	}
	if c.Session.MaxIdle.Duration < 0 {
		errs = append(errs, "session: max_idle must be >= 0")
	}

	// Proxies
	for i, p := range c.Proxies {
		if p.Address == "" {
			errs = append(errs, fmt.Sprintf("proxies: entry %d is missing an address", i))
		}
	}

	// Feed
	switch strings.ToLower(c.Feed.Source) {
	case "ws":
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url must not be empty when source is \"ws\"")
		}
	case "bus":
		// Quote relay over the Redis bus needs no further parameters.
	default:
		errs = append(errs, fmt.Sprintf("feed: unknown source %q (valid: ws, bus)", c.Feed.Source))
	}

	// Registry
	if c.Registry.FreshnessWindow.Duration <= 0 {
		errs = append(errs, "registry: freshness_window must be > 0")
	}
	if c.Registry.HeartbeatInterval.Duration <= 0 {
		errs = append(errs, "registry: heartbeat_interval must be > 0")
	}
	if c.Registry.HeartbeatInterval.Duration >= c.Registry.FreshnessWindow.Duration {
		errs = append(errs, "registry: heartbeat_interval must be shorter than freshness_window")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive / S3
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Notify — Telegram fields must be set together, or both empty.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
