// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "TESTLAB"

// Feed modes.
const (
	FeedModePoll      = "poll"
	FeedModeWebSocket = "websocket"
)

type FeedConfig struct {
	Mode           string `mapstructure:"mode"`
	QuoteURL       string `mapstructure:"quote_url"`
	WebSocketURL   string `mapstructure:"websocket_url"`
	PollIntervalMS int    `mapstructure:"poll_interval_ms"`
}

// TelegramConfig identifies the user account that forwards messages. The
// session file is created by cmd/tglogin.
type TelegramConfig struct {
	AppID       int    `mapstructure:"app_id"`
	AppHash     string `mapstructure:"app_hash"`
	Phone       string `mapstructure:"phone"`
	SessionFile string `mapstructure:"session_file"`
}

type DiscordConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
}

// RedisConfig enables the event stream sink when Addr is set.
type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Stream       string `mapstructure:"stream"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Debug bool   `mapstructure:"debug"`
}

type PaperConfig struct {
	InitialSOL     float64 `mapstructure:"initial_sol"`
	PlatformFeeBps uint32  `mapstructure:"platform_fee_bps"`
	ImpactBps      uint32  `mapstructure:"impact_bps"`
}

type Config struct {
	JournalCapacity   int            `mapstructure:"journal_capacity"`
	JournalCSVDir     string         `mapstructure:"journal_csv_dir"`
	DispatchTimeoutMS int            `mapstructure:"dispatch_timeout_ms"`
	ConcurrentActions bool           `mapstructure:"concurrent_actions"`
	UpdateIntervalMS  int            `mapstructure:"update_interval_ms"`
	Feed              FeedConfig     `mapstructure:"feed"`
	Telegram          TelegramConfig `mapstructure:"telegram"`
	Discord           DiscordConfig  `mapstructure:"discord"`
	PostgresURL       string         `mapstructure:"postgres_url"`
	NATSURL           string         `mapstructure:"nats_url"`
	NATSSubject       string         `mapstructure:"nats_subject"`
	Redis             RedisConfig    `mapstructure:"redis"`
	MetricsAddr       string         `mapstructure:"metrics_addr"`
	WalletsFile       string         `mapstructure:"wallets_file"`
	PlanFile          string         `mapstructure:"plan_file"`
	PaperTrading      bool           `mapstructure:"paper_trading"`
	Paper             PaperConfig    `mapstructure:"paper"`
	Log               LogConfig      `mapstructure:"log"`
}

const (
	DefaultJournalCapacity   = 1000
	DefaultDispatchTimeoutMS = 15000
	DefaultPollIntervalMS    = 2000
	DefaultUpdateIntervalMS  = 500
	DefaultNATSSubject       = "testlab"
	DefaultRedisStream       = "testlab:events"
	DefaultRedisStreamMaxLen = 10000
	DefaultQuoteURL          = "https://api.dexscreener.com/latest/dex"
)

// DispatchTimeout returns the per-action deadline.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutMS) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Feed.PollIntervalMS) * time.Millisecond
}

// UpdateInterval is the campaign.updated coalescing window. Zero disables it.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMS) * time.Millisecond
}

// LoadConfig reads the file at path, if any, then applies TESTLAB_*
// environment overrides. Nested keys use underscores, e.g.
// TESTLAB_FEED_MODE or TESTLAB_TELEGRAM_BOT_TOKEN.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"journal_capacity":       DefaultJournalCapacity,
		"journal_csv_dir":        "",
		"dispatch_timeout_ms":    DefaultDispatchTimeoutMS,
		"concurrent_actions":     false,
		"update_interval_ms":     DefaultUpdateIntervalMS,
		"feed.mode":              FeedModePoll,
		"feed.quote_url":         DefaultQuoteURL,
		"feed.websocket_url":     "",
		"feed.poll_interval_ms":  DefaultPollIntervalMS,
		"telegram.app_id":        0,
		"telegram.app_hash":      "",
		"telegram.phone":         "",
		"telegram.session_file":  "telegram.session",
		"discord.enabled":        false,
		"discord.username":       "testlab",
		"postgres_url":           "",
		"nats_url":               "",
		"nats_subject":           DefaultNATSSubject,
		"redis.addr":             "",
		"redis.stream":           DefaultRedisStream,
		"redis.stream_max_len":   DefaultRedisStreamMaxLen,
		"metrics_addr":           "",
		"wallets_file":           "",
		"plan_file":              "",
		"paper_trading":          true,
		"paper.initial_sol":      10.0,
		"paper.platform_fee_bps": 100,
		"paper.impact_bps":       50,
		"log.file":               "testlab.log",
		"log.debug":              false,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	switch cfg.Feed.Mode {
	case FeedModePoll:
		if err := validateURLWithCache(cfg.Feed.QuoteURL, "http"); err != nil {
			return errors.New("invalid feed.quote_url")
		}
	case FeedModeWebSocket:
		if cfg.Feed.WebSocketURL == "" {
			return errors.New("feed.websocket_url is required in websocket mode")
		}
		if err := validateURLWithCache(cfg.Feed.WebSocketURL, "ws"); err != nil {
			return errors.New("invalid WebSocket URL protocol")
		}
	default:
		return fmt.Errorf("unknown feed.mode %q", cfg.Feed.Mode)
	}

	if cfg.Telegram.AppID != 0 && cfg.Telegram.AppHash == "" {
		return errors.New("telegram.app_hash is required with telegram.app_id")
	}
	if cfg.NATSURL != "" {
		if err := validateURLWithCache(cfg.NATSURL, "nats"); err != nil {
			return errors.New("nats_url must use the nats:// scheme")
		}
	}
	if !cfg.PaperTrading {
		return errors.New("only paper_trading is supported")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.JournalCapacity <= 0 {
		return errors.New("invalid journal_capacity")
	}
	if cfg.DispatchTimeoutMS <= 0 {
		return errors.New("invalid dispatch_timeout_ms")
	}
	if cfg.UpdateIntervalMS < 0 {
		return errors.New("invalid update_interval_ms")
	}
	if cfg.Feed.PollIntervalMS <= 0 {
		return errors.New("invalid feed.poll_interval_ms")
	}
	if cfg.Redis.StreamMaxLen < 0 {
		return errors.New("invalid redis.stream_max_len")
	}
	if cfg.Paper.InitialSOL < 0 {
		return errors.New("invalid paper.initial_sol")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	key := protocol + "|" + rawURL
	if _, ok := urlCache.Load(key); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(key, parsed)
	return nil
}
