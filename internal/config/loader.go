package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MMSIM_* environment variable overrides, and
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

// Defaults returns the built-in configuration used as the merge base.
func Defaults() Config {
	return Config{
		Mode:     "backtest",
		LogLevel: "info",
		Strategy: StrategyConfig{Name: "baseline"},
		Feed: FeedConfig{
			ReconnectSec:    5,
			PingIntervalSec: 30,
		},
		Postgres: PostgresConfig{
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
		},
		Securities: map[string]SecurityConfig{},
	}
}

// applyEnvOverrides reads well-known MMSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject connection secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "MMSIM_MODE")
	setStr(&cfg.LogLevel, "MMSIM_LOG_LEVEL")
	setStr(&cfg.Strategy.Name, "MMSIM_STRATEGY_NAME")
	setInt(&cfg.Backtest.Workers, "MMSIM_BACKTEST_WORKERS")
	setStr(&cfg.Backtest.DataDir, "MMSIM_BACKTEST_DATA_DIR")

	setStr(&cfg.Feed.WsURL, "MMSIM_FEED_WS_URL")
	setInt(&cfg.Feed.ReconnectSec, "MMSIM_FEED_RECONNECT_SEC")

	setStr(&cfg.Postgres.DSN, "MMSIM_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "MMSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MMSIM_POSTGRES_POOL_MIN_CONNS")

	setStr(&cfg.Redis.Addr, "MMSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MMSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MMSIM_REDIS_DB")

	setStr(&cfg.S3.Endpoint, "MMSIM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MMSIM_S3_REGION")
	setStr(&cfg.S3.Bucket, "MMSIM_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "MMSIM_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "MMSIM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MMSIM_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "MMSIM_S3_FORCE_PATH_STYLE")
}

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
