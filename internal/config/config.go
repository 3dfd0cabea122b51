// Package config defines the top-level configuration for the market-making
// backtest engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MMSIM_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Strategy   StrategyConfig            `toml:"strategy"`
	Backtest   BacktestConfig            `toml:"backtest"`
	Feed       FeedConfig                `toml:"feed"`
	Postgres   PostgresConfig            `toml:"postgres"`
	Redis      RedisConfig               `toml:"redis"`
	S3         S3Config                  `toml:"s3"`
	Securities map[string]SecurityConfig `toml:"securities"`
}

// StrategyConfig selects which strategy variant drives the engine.
type StrategyConfig struct {
	// Name is one of the registered variants: baseline, price_follow,
	// stop_loss, closing_auction.
	Name string `toml:"name"`
}

// BacktestConfig holds runner parameters.
type BacktestConfig struct {
	// Workers bounds per-security parallelism; <= 0 means one worker per CPU.
	Workers int `toml:"workers"`
	// DataDir holds one CSV file per security, named <security>.csv, with
	// rows timestamp,type,price,volume.
	DataDir string `toml:"data_dir"`
}

// FeedConfig holds the streaming feed endpoint for stream mode.
type FeedConfig struct {
	WsURL           string `toml:"ws_url"`
	ReconnectSec    int    `toml:"reconnect_sec"`
	PingIntervalSec int    `toml:"ping_interval_sec"`
}

// PostgresConfig holds result-store connection parameters.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// Enabled reports whether a result store should be wired.
func (c PostgresConfig) Enabled() bool { return c.DSN != "" }

// RedisConfig holds summary-cache connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// Enabled reports whether the summary cache should be wired.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// S3Config holds artifact-archiver parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Enabled reports whether the archiver should be wired.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// SecurityConfig is the per-security parameter record. Zero values mean
// "use default"; Resolve fills them in once at load time.
type SecurityConfig struct {
	QuoteSize    float64 `toml:"quote_size"`
	QuoteSizeBid float64 `toml:"quote_size_bid"`
	QuoteSizeAsk float64 `toml:"quote_size_ask"`

	RefillIntervalSec int     `toml:"refill_interval_sec"`
	MaxPosition       float64 `toml:"max_position"`
	// MaxNotional caps the position dynamically via the mid price; 0 disables.
	MaxNotional float64 `toml:"max_notional"`
	// MinQuoteNotional is the liquidity-gate threshold: price x depth at the
	// candidate price must be at least this much before a side is activated.
	MinQuoteNotional float64 `toml:"min_quote_notional"`

	StopLossThresholdPct float64 `toml:"stop_loss_threshold_pct"`

	// Closing-auction variant.
	VWAPPrecloseMin    int     `toml:"vwap_preclose_period_min"`
	SpreadVWAPPct      float64 `toml:"spread_vwap_pct"`
	OrderNotional      float64 `toml:"order_notional"`
	AuctionFillPct     float64 `toml:"auction_fill_pct"`
	Exchange           string  `toml:"exchange"` // ADX or DFM tick table
	TrendFilterSell    *bool   `toml:"trend_filter_sell_enabled"`
	TrendFilterSellBps float64 `toml:"trend_filter_sell_threshold_bps_hr"`
	TrendFilterBuy     *bool   `toml:"trend_filter_buy_enabled"`
	TrendFilterBuyBps  float64 `toml:"trend_filter_buy_threshold_bps_hr"`
}

// Security defaults; securities absent from the config fall back to this
// permissive baseline.
const (
	DefaultQuoteSize         = 50000.0
	DefaultRefillIntervalSec = 60
	DefaultMaxPosition       = 2000000.0
	DefaultMinQuoteNotional  = 25000.0
	DefaultStopLossPct       = 2.0
	DefaultVWAPPrecloseMin   = 15
	DefaultSpreadVWAPPct     = 0.5
	DefaultOrderNotional     = 250000.0
	DefaultAuctionFillPct    = 10.0
	DefaultTrendFilterBps    = 10.0
)

// Resolve returns a copy with every zero field replaced by its default.
func (c SecurityConfig) Resolve() SecurityConfig {
	if c.QuoteSize <= 0 {
		c.QuoteSize = DefaultQuoteSize
	}
	if c.QuoteSizeBid <= 0 {
		c.QuoteSizeBid = c.QuoteSize
	}
	if c.QuoteSizeAsk <= 0 {
		c.QuoteSizeAsk = c.QuoteSize
	}
	if c.RefillIntervalSec <= 0 {
		c.RefillIntervalSec = DefaultRefillIntervalSec
	}
	if c.MaxPosition <= 0 {
		c.MaxPosition = DefaultMaxPosition
	}
	if c.MinQuoteNotional <= 0 {
		c.MinQuoteNotional = DefaultMinQuoteNotional
	}
	if c.StopLossThresholdPct <= 0 {
		c.StopLossThresholdPct = DefaultStopLossPct
	}
	if c.VWAPPrecloseMin <= 0 {
		c.VWAPPrecloseMin = DefaultVWAPPrecloseMin
	}
	if c.SpreadVWAPPct <= 0 {
		c.SpreadVWAPPct = DefaultSpreadVWAPPct
	}
	if c.OrderNotional <= 0 {
		c.OrderNotional = DefaultOrderNotional
	}
	if c.AuctionFillPct <= 0 {
		c.AuctionFillPct = DefaultAuctionFillPct
	}
	if c.Exchange == "" {
		c.Exchange = "ADX"
	}
	if c.TrendFilterSell == nil {
		on := true
		c.TrendFilterSell = &on
	}
	if c.TrendFilterSellBps <= 0 {
		c.TrendFilterSellBps = DefaultTrendFilterBps
	}
	if c.TrendFilterBuy == nil {
		off := false
		c.TrendFilterBuy = &off
	}
	if c.TrendFilterBuyBps <= 0 {
		c.TrendFilterBuyBps = DefaultTrendFilterBps
	}
	return c
}

// RefillInterval returns the refill/cooldown interval as a duration.
func (c SecurityConfig) RefillInterval() time.Duration {
	return time.Duration(c.RefillIntervalSec) * time.Second
}

// ResolveSecurity looks up and resolves the record for a security, falling
// back to the default baseline when it is not configured.
func (c *Config) ResolveSecurity(security string) SecurityConfig {
	sc, ok := c.Securities[security]
	if !ok {
		sc = SecurityConfig{}
	}
	return sc.Resolve()
}

// Validate checks the configuration for inconsistencies that Load cannot
// default away.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "backtest", "stream":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}
	switch c.Strategy.Name {
	case "baseline", "price_follow", "stop_loss", "closing_auction":
	default:
		return fmt.Errorf("config: unknown strategy %q", c.Strategy.Name)
	}
	if strings.ToLower(c.Mode) == "stream" && c.Feed.WsURL == "" {
		return fmt.Errorf("config: stream mode requires feed.ws_url")
	}
	for name, sc := range c.Securities {
		if sc.MaxNotional < 0 {
			return fmt.Errorf("config: security %s: max_notional must be >= 0", name)
		}
		if sc.Exchange != "" && sc.Exchange != "ADX" && sc.Exchange != "DFM" {
			return fmt.Errorf("config: security %s: unknown exchange %q", name, sc.Exchange)
		}
	}
	return nil
}
