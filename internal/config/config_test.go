package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"spread-trading/internal/core"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIKey, EnvAPISecret, EnvTelegramToken, EnvTelegramChat, EnvPostgresDSN, EnvKafkaBrokers} {
		t.Setenv(key, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, `
instance_id: Desk1
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mode != ModeDryRun {
		t.Fatalf("mode = %q, want %q", cfg.Mode, ModeDryRun)
	}
	if cfg.InstanceID != "desk1" {
		t.Fatalf("instance_id = %q, want desk1", cfg.InstanceID)
	}
	if cfg.Trading.DepthLimit != 5 {
		t.Fatalf("trading.depth_limit = %d, want 5", cfg.Trading.DepthLimit)
	}
	if !cfg.Trading.SellMarkup.Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("trading.sell_markup = %s, want 0.02", cfg.Trading.SellMarkup.String())
	}
	if cfg.Exchange.RecvWindowMs != 2000 {
		t.Fatalf("exchange.recv_window_ms = %d, want 2000", cfg.Exchange.RecvWindowMs)
	}
	if cfg.Exchange.RestBaseURL != "https://api.wazirx.com" {
		t.Fatalf("exchange.rest_base_url = %q", cfg.Exchange.RestBaseURL)
	}
	if cfg.Catalog.Source != CatalogFile || cfg.Catalog.Path != "catalog.yaml" {
		t.Fatalf("catalog = %+v, want file catalog.yaml", cfg.Catalog)
	}
	if !cfg.Screener.MinNotional.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("screener.min_notional = %s, want 60", cfg.Screener.MinNotional.String())
	}
	if !cfg.Screener.SharePercent.Equal(decimal.NewFromInt(33)) {
		t.Fatalf("screener.share_percent = %s, want 33", cfg.Screener.SharePercent.String())
	}
	if !cfg.CircuitBreaker.On() {
		t.Fatalf("circuit_breaker enabled = false, want true by default")
	}
	if cfg.State.LockStaleSec != 600 {
		t.Fatalf("state.lock_stale_sec = %d, want 600", cfg.State.LockStaleSec)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, `
trading:
  depth_limt: 5
`)
	_, err := Load(cfgPath)
	if err == nil {
		t.Fatalf("Load() error = nil, want unknown field error")
	}
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, `
mode: dryrun
---
mode: live
`)
	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "single YAML document") {
		t.Fatalf("Load() error = %v, want single document error", err)
	}
}

func TestLoadLiveRequiresCredentials(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, `
mode: live
`)
	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "api_key/api_secret") {
		t.Fatalf("Load() error = %v, want credentials error", err)
	}
}

func TestLoadReadsCredentialsFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, " env-key ")
	t.Setenv(EnvAPISecret, "env-secret")
	t.Setenv(EnvKafkaBrokers, "k1:9092, k2:9092,")
	cfgPath := writeTempConfig(t, `
mode: live
exchange:
  api_key: yaml-key
events:
  kafka:
    enabled: true
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" || cfg.Exchange.APISecret != "env-secret" {
		t.Fatalf("exchange credentials = %q/%q, want env values", cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	}
	if len(cfg.Events.Kafka.Brokers) != 2 || cfg.Events.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("events.kafka.brokers = %v, want [k1:9092 k2:9092]", cfg.Events.Kafka.Brokers)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("WAZIRX_API_SECRET=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file failed: %v", err)
	}
	// godotenv does not override variables that are already set, even empty.
	os.Unsetenv(EnvAPISecret)
	t.Cleanup(func() { os.Unsetenv(EnvAPISecret) })

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if got := os.Getenv(EnvAPISecret); got != "from-file" {
		t.Fatalf("env %s = %q, want from-file", EnvAPISecret, got)
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvFile(missing) error = %v, want nil", err)
	}
}

func TestLoadRejectsBadMarkup(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, `
trading:
  sell_markup: "1.5"
`)
	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "sell_markup") {
		t.Fatalf("Load() error = %v, want sell_markup error", err)
	}
}

func TestLoadPostgresCatalogNeedsDSN(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, `
catalog:
  source: postgres
`)
	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "postgres.dsn") {
		t.Fatalf("Load() error = %v, want dsn error", err)
	}

	t.Setenv(EnvPostgresDSN, "host=localhost user=bot dbname=wazirx")
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() with env dsn error = %v", err)
	}
	if cfg.Catalog.Postgres.Table != "assets" {
		t.Fatalf("catalog.postgres.table = %q, want assets", cfg.Catalog.Postgres.Table)
	}
}

func TestValidateScreener(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, `
screener:
  symbols: [" BTCINR ", "ethinr"]
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Screener.Symbols[0] != "btcinr" {
		t.Fatalf("screener.symbols[0] = %q, want btcinr", cfg.Screener.Symbols[0])
	}
	if err := cfg.ValidateScreener(); err == nil || !strings.Contains(err.Error(), "base_amount") {
		t.Fatalf("ValidateScreener() error = %v, want base_amount error", err)
	}
	cfg.Screener.BaseAmount = Decimal{decimal.NewFromInt(10000)}
	if err := cfg.ValidateScreener(); err != nil {
		t.Fatalf("ValidateScreener() error = %v", err)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write temp config failed: %v", err)
	}
	return path
}
