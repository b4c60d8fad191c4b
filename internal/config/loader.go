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
// built-in defaults, applies CTMKT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known CTMKT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.ControllerAddress, "CTMKT_MARKET_CONTROLLER_ADDRESS")
	setStr(&cfg.Market.CollateralName, "CTMKT_MARKET_COLLATERAL_NAME")
	setStr(&cfg.Market.CollateralSymbol, "CTMKT_MARKET_COLLATERAL_SYMBOL")
	setInt(&cfg.Market.CollateralDecimals, "CTMKT_MARKET_COLLATERAL_DECIMALS")
	setStr(&cfg.Market.DefaultSwapFee, "CTMKT_MARKET_DEFAULT_SWAP_FEE")

	// ── Database ──
	setStr(&cfg.Database.DSN, "CTMKT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "CTMKT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "CTMKT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "CTMKT_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "CTMKT_DATABASE_USER")
	setStr(&cfg.Database.Password, "CTMKT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "CTMKT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "CTMKT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "CTMKT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "CTMKT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CTMKT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CTMKT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CTMKT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CTMKT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CTMKT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CTMKT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CTMKT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CTMKT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CTMKT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CTMKT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CTMKT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CTMKT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CTMKT_S3_FORCE_PATH_STYLE")

	// ── Snapshot ──
	setBool(&cfg.Snapshot.Enabled, "CTMKT_SNAPSHOT_ENABLED")
	setDuration(&cfg.Snapshot.Interval, "CTMKT_SNAPSHOT_INTERVAL")
	setStr(&cfg.Snapshot.Prefix, "CTMKT_SNAPSHOT_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CTMKT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CTMKT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CTMKT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CTMKT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CTMKT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CTMKT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CTMKT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "CTMKT_LOG_LEVEL")
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
