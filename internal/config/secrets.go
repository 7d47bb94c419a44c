package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Accounts
	out.Accounts = cfg.Accounts
	redact(&out.Accounts.VaultPassword)
	if cfg.Accounts.Inline != nil {
		out.Accounts.Inline = append(out.Accounts.Inline[:0:0], cfg.Accounts.Inline...)
		for i := range out.Accounts.Inline {
			redact(&out.Accounts.Inline[i].Password)
		}
	}

	// Proxies carry auth in-band.
	if cfg.Proxies != nil {
		out.Proxies = append(out.Proxies[:0:0], cfg.Proxies...)
		for i := range out.Proxies {
			redact(&out.Proxies[i].Password)
		}
	}

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = append(out.Notify.Events[:0:0], cfg.Notify.Events...)
	}
	if cfg.Arbitrage.EnabledMarkets != nil {
		out.Arbitrage.EnabledMarkets = append(out.Arbitrage.EnabledMarkets[:0:0], cfg.Arbitrage.EnabledMarkets...)
	}
	if cfg.Arbitrage.Tiers != nil {
		out.Arbitrage.Tiers = append(out.Arbitrage.Tiers[:0:0], cfg.Arbitrage.Tiers...)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Arbitrage.TierLeagues != nil {
		out.Arbitrage.TierLeagues = make(map[string][]string, len(cfg.Arbitrage.TierLeagues))
		for k, v := range cfg.Arbitrage.TierLeagues {
			out.Arbitrage.TierLeagues[k] = append(v[:0:0], v...)
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
