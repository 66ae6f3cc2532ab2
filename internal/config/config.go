package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"spread-trading/internal/core"
)

type Mode string

type DepthSource string

type CatalogSource string

const (
	ModeDryRun Mode = "dryrun"
	ModeLive   Mode = "live"
)

const (
	DepthREST   DepthSource = "rest"
	DepthStream DepthSource = "stream"
)

const (
	CatalogFile     CatalogSource = "file"
	CatalogPebble   CatalogSource = "pebble"
	CatalogPostgres CatalogSource = "postgres"
)

type Config struct {
	Mode           Mode                 `yaml:"mode"`
	InstanceID     string               `yaml:"instance_id"`
	Exchange       ExchangeConfig       `yaml:"exchange"`
	Trading        TradingConfig        `yaml:"trading"`
	Catalog        CatalogConfig        `yaml:"catalog"`
	Screener       ScreenerConfig       `yaml:"screener"`
	State          StateConfig          `yaml:"state"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Events         EventsConfig         `yaml:"events"`
	API            APIConfig            `yaml:"api"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

type ExchangeConfig struct {
	APIKey         string      `yaml:"api_key"`
	APISecret      string      `yaml:"api_secret"`
	RestBaseURL    string      `yaml:"rest_base_url"`
	WSBaseURL      string      `yaml:"ws_base_url"`
	DepthSource    DepthSource `yaml:"depth_source"`
	DepthMaxAgeSec int64       `yaml:"depth_max_age_sec"`
	RecvWindowMs   int64       `yaml:"recv_window_ms"`
	HTTPTimeoutSec int64       `yaml:"http_timeout_sec"`
	UserAgent      string      `yaml:"user_agent"`
}

type TradingConfig struct {
	DepthLimit     int     `yaml:"depth_limit"`
	PaceMs         int64   `yaml:"pace_ms"`
	PassIntervalMs int64   `yaml:"pass_interval_ms"`
	Workers        int     `yaml:"workers"`
	SellMarkup     Decimal `yaml:"sell_markup"`
	OrderType      string  `yaml:"order_type"`
	MaxPasses      int     `yaml:"max_passes"`
}

type CatalogConfig struct {
	Source   CatalogSource  `yaml:"source"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type ScreenerConfig struct {
	QuoteAsset     string   `yaml:"quote_asset"`
	BaseAmount     Decimal  `yaml:"base_amount"`
	SharePercent   Decimal  `yaml:"share_percent"`
	MinNotional    Decimal  `yaml:"min_notional"`
	QtyStep        Decimal  `yaml:"qty_step"`
	MinQuoteVolume Decimal  `yaml:"min_quote_volume"`
	MaxSymbols     int      `yaml:"max_symbols"`
	Symbols        []string `yaml:"symbols"`
	MinDepthLevels int      `yaml:"min_depth_levels"`
}

type StateConfig struct {
	Dir          string `yaml:"dir"`
	LockTakeover bool   `yaml:"lock_takeover"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

type CircuitBreakerConfig struct {
	Enabled           *bool `yaml:"enabled"`
	MaxPlaceFailures  int   `yaml:"max_place_failures"`
	MaxCancelFailures int   `yaml:"max_cancel_failures"`
	MaxDepthFailures  int   `yaml:"max_depth_failures"`
	CooldownSec       int64 `yaml:"cooldown_sec"`
}

// On reports whether the breaker is enabled. It defaults to true.
func (c CircuitBreakerConfig) On() bool {
	return c.Enabled == nil || *c.Enabled
}

type EventsConfig struct {
	Journal bool        `yaml:"journal"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type APIConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ObservabilityConfig struct {
	Log                LogConfig       `yaml:"log"`
	Telegram           TelegramConfig  `yaml:"telegram"`
	Pyroscope          PyroscopeConfig `yaml:"pyroscope"`
	AlertDropReportSec int64           `yaml:"alert_drop_report_sec"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

type PyroscopeConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"server_address"`
	AppName       string `yaml:"app_name"`
}

// Load reads a single YAML document, overlays environment secrets, applies
// defaults and validates. Every returned error wraps core.ErrInvalidConfig.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", core.ErrInvalidConfig, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", core.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	c.InstanceID = strings.ToLower(strings.TrimSpace(c.InstanceID))
	c.Exchange.APIKey = strings.TrimSpace(c.Exchange.APIKey)
	c.Exchange.APISecret = strings.TrimSpace(c.Exchange.APISecret)
	c.Exchange.RestBaseURL = strings.TrimSpace(c.Exchange.RestBaseURL)
	c.Exchange.WSBaseURL = strings.TrimSpace(c.Exchange.WSBaseURL)
	c.Exchange.DepthSource = DepthSource(strings.ToLower(strings.TrimSpace(string(c.Exchange.DepthSource))))
	c.Trading.OrderType = strings.ToLower(strings.TrimSpace(c.Trading.OrderType))
	c.Catalog.Source = CatalogSource(strings.ToLower(strings.TrimSpace(string(c.Catalog.Source))))
	c.Catalog.Path = strings.TrimSpace(c.Catalog.Path)
	c.Catalog.Postgres.DSN = strings.TrimSpace(c.Catalog.Postgres.DSN)
	c.Screener.QuoteAsset = strings.ToLower(strings.TrimSpace(c.Screener.QuoteAsset))
	for i, s := range c.Screener.Symbols {
		c.Screener.Symbols[i] = strings.ToLower(strings.TrimSpace(s))
	}
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Observability.Log.Level = strings.ToLower(strings.TrimSpace(c.Observability.Log.Level))
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	if c.InstanceID == "" {
		c.InstanceID = "default"
	}
	if c.Exchange.RestBaseURL == "" {
		c.Exchange.RestBaseURL = "https://api.wazirx.com"
	}
	if c.Exchange.WSBaseURL == "" {
		c.Exchange.WSBaseURL = "wss://stream.wazirx.com/stream"
	}
	if c.Exchange.DepthSource == "" {
		c.Exchange.DepthSource = DepthREST
	}
	if c.Exchange.DepthMaxAgeSec == 0 {
		c.Exchange.DepthMaxAgeSec = 10
	}
	if c.Exchange.RecvWindowMs == 0 {
		c.Exchange.RecvWindowMs = 2000
	}
	if c.Exchange.HTTPTimeoutSec == 0 {
		c.Exchange.HTTPTimeoutSec = 15
	}
	if c.Trading.DepthLimit == 0 {
		c.Trading.DepthLimit = 5
	}
	if c.Trading.PaceMs == 0 {
		c.Trading.PaceMs = 250
	}
	if c.Trading.PassIntervalMs == 0 {
		c.Trading.PassIntervalMs = 1000
	}
	if c.Trading.Workers == 0 {
		c.Trading.Workers = 1
	}
	if c.Trading.SellMarkup.IsZero() {
		c.Trading.SellMarkup = Decimal{decimal.RequireFromString("0.02")}
	}
	if c.Trading.OrderType == "" {
		c.Trading.OrderType = "limit"
	}
	if c.Catalog.Source == "" {
		c.Catalog.Source = CatalogFile
	}
	if c.Catalog.Path == "" {
		switch c.Catalog.Source {
		case CatalogPebble:
			c.Catalog.Path = "state/catalog.pebble"
		default:
			c.Catalog.Path = "catalog.yaml"
		}
	}
	if c.Catalog.Postgres.Table == "" {
		c.Catalog.Postgres.Table = "assets"
	}
	if c.Screener.QuoteAsset == "" {
		c.Screener.QuoteAsset = "inr"
	}
	if c.Screener.SharePercent.IsZero() {
		c.Screener.SharePercent = Decimal{decimal.NewFromInt(33)}
	}
	if c.Screener.MinNotional.IsZero() {
		c.Screener.MinNotional = Decimal{decimal.NewFromInt(60)}
	}
	if c.Screener.QtyStep.IsZero() {
		c.Screener.QtyStep = Decimal{decimal.RequireFromString("0.1")}
	}
	if c.Screener.MaxSymbols == 0 {
		c.Screener.MaxSymbols = 10
	}
	if c.Screener.MinDepthLevels == 0 {
		c.Screener.MinDepthLevels = 2
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.LockStaleSec == 0 {
		c.State.LockStaleSec = 600
	}
	if c.CircuitBreaker.MaxPlaceFailures == 0 {
		c.CircuitBreaker.MaxPlaceFailures = 5
	}
	if c.CircuitBreaker.MaxCancelFailures == 0 {
		c.CircuitBreaker.MaxCancelFailures = 5
	}
	if c.CircuitBreaker.MaxDepthFailures == 0 {
		c.CircuitBreaker.MaxDepthFailures = 10
	}
	if c.CircuitBreaker.CooldownSec == 0 {
		c.CircuitBreaker.CooldownSec = 60
	}
	if c.Events.Kafka.Topic == "" {
		c.Events.Kafka.Topic = "spread.orders"
	}
	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8090"
	}
	if c.Observability.Log.Level == "" {
		c.Observability.Log.Level = "info"
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
	if c.Observability.Pyroscope.AppName == "" {
		c.Observability.Pyroscope.AppName = "spreadbot"
	}
	if c.Observability.AlertDropReportSec == 0 {
		c.Observability.AlertDropReportSec = 60
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeDryRun, ModeLive:
	default:
		return fmt.Errorf("mode must be dryrun or live")
	}
	if !isValidInstanceID(c.InstanceID) {
		return fmt.Errorf("instance_id must match [a-z0-9_-], length 1..24")
	}
	if c.Mode == ModeLive && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("exchange api_key/api_secret are required for live mode")
	}
	if err := validateURL(c.Exchange.RestBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("exchange rest_base_url %v", err)
	}
	if err := validateURL(c.Exchange.WSBaseURL, "ws", "wss"); err != nil {
		return fmt.Errorf("exchange ws_base_url %v", err)
	}
	if c.Exchange.DepthSource != DepthREST && c.Exchange.DepthSource != DepthStream {
		return fmt.Errorf("exchange depth_source must be rest or stream")
	}
	if c.Exchange.DepthMaxAgeSec < 1 || c.Exchange.DepthMaxAgeSec > 300 {
		return fmt.Errorf("exchange depth_max_age_sec must be between 1 and 300")
	}
	if c.Exchange.RecvWindowMs < 1 || c.Exchange.RecvWindowMs > 60000 {
		return fmt.Errorf("exchange recv_window_ms must be between 1 and 60000")
	}
	if c.Exchange.HTTPTimeoutSec < 1 || c.Exchange.HTTPTimeoutSec > 120 {
		return fmt.Errorf("exchange http_timeout_sec must be between 1 and 120")
	}
	if c.Trading.DepthLimit < 2 || c.Trading.DepthLimit > 1000 {
		return fmt.Errorf("trading depth_limit must be between 2 and 1000")
	}
	if c.Trading.PaceMs < 0 || c.Trading.PaceMs > 60000 {
		return fmt.Errorf("trading pace_ms must be between 0 and 60000")
	}
	if c.Trading.PassIntervalMs < 0 {
		return fmt.Errorf("trading pass_interval_ms must be >= 0")
	}
	if c.Trading.Workers < 1 || c.Trading.Workers > 64 {
		return fmt.Errorf("trading workers must be between 1 and 64")
	}
	if c.Trading.SellMarkup.Sign() <= 0 || c.Trading.SellMarkup.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("trading sell_markup must be > 0 and < 1")
	}
	if c.Trading.OrderType != string(core.Limit) {
		return fmt.Errorf("trading order_type must be limit")
	}
	if c.Trading.MaxPasses < 0 {
		return fmt.Errorf("trading max_passes must be >= 0")
	}
	switch c.Catalog.Source {
	case CatalogFile, CatalogPebble:
	case CatalogPostgres:
		if c.Catalog.Postgres.DSN == "" {
			return fmt.Errorf("catalog postgres.dsn is required for postgres source")
		}
		if !isValidIdentifier(c.Catalog.Postgres.Table) {
			return fmt.Errorf("catalog postgres.table must match [a-z0-9_], length 1..63")
		}
	default:
		return fmt.Errorf("catalog source must be file, pebble, or postgres")
	}
	if c.State.LockStaleSec < 0 || c.State.LockStaleSec > 86400 {
		return fmt.Errorf("state.lock_stale_sec must be between 0 and 86400")
	}
	if c.CircuitBreaker.On() {
		if c.CircuitBreaker.MaxPlaceFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_place_failures must be >= 1")
		}
		if c.CircuitBreaker.MaxCancelFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_cancel_failures must be >= 1")
		}
		if c.CircuitBreaker.MaxDepthFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_depth_failures must be >= 1")
		}
		if c.CircuitBreaker.CooldownSec < 1 || c.CircuitBreaker.CooldownSec > 3600 {
			return fmt.Errorf("circuit_breaker.cooldown_sec must be between 1 and 3600")
		}
	}
	if c.Events.Kafka.Enabled && len(c.Events.Kafka.Brokers) == 0 {
		return fmt.Errorf("events.kafka.brokers is required when kafka enabled")
	}
	switch c.Observability.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("observability.log.level must be debug, info, warn, or error")
	}
	if c.Observability.AlertDropReportSec < 0 || c.Observability.AlertDropReportSec > 3600 {
		return fmt.Errorf("observability.alert_drop_report_sec must be between 0 and 3600")
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	if c.Observability.Pyroscope.Enabled {
		if err := validateURL(c.Observability.Pyroscope.ServerAddress, "http", "https"); err != nil {
			return fmt.Errorf("observability.pyroscope.server_address %v", err)
		}
	}
	return nil
}

// ValidateScreener checks the settings only the catalog builder needs.
func (c Config) ValidateScreener() error {
	s := c.Screener
	if s.BaseAmount.Sign() <= 0 {
		return fmt.Errorf("%w: screener base_amount must be > 0", core.ErrInvalidConfig)
	}
	if s.SharePercent.Sign() <= 0 || s.SharePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: screener share_percent must be in (0, 100]", core.ErrInvalidConfig)
	}
	if s.MinNotional.Sign() < 0 || s.QtyStep.Sign() <= 0 || s.MinQuoteVolume.Sign() < 0 {
		return fmt.Errorf("%w: screener min_notional/min_quote_volume must be >= 0 and qty_step > 0", core.ErrInvalidConfig)
	}
	if s.MaxSymbols < 1 {
		return fmt.Errorf("%w: screener max_symbols must be >= 1", core.ErrInvalidConfig)
	}
	if s.MinDepthLevels < 2 {
		return fmt.Errorf("%w: screener min_depth_levels must be >= 2", core.ErrInvalidConfig)
	}
	return nil
}

func isValidInstanceID(v string) bool {
	if len(v) < 1 || len(v) > 24 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func isValidIdentifier(v string) bool {
	if len(v) < 1 || len(v) > 63 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
