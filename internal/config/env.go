package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvAPIKey        = "WAZIRX_API_KEY"
	EnvAPISecret     = "WAZIRX_API_SECRET"
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChat  = "TELEGRAM_CHAT_ID"
	EnvPostgresDSN   = "SPREAD_POSTGRES_DSN"
	EnvKafkaBrokers  = "SPREAD_KAFKA_BROKERS"
)

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Exchange.APIKey, EnvAPIKey)
	set(&c.Exchange.APISecret, EnvAPISecret)
	set(&c.Observability.Telegram.BotToken, EnvTelegramToken)
	set(&c.Observability.Telegram.ChatID, EnvTelegramChat)
	set(&c.Catalog.Postgres.DSN, EnvPostgresDSN)
	if v, ok := lookup(EnvKafkaBrokers); ok && strings.TrimSpace(v) != "" {
		brokers := make([]string, 0, 4)
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Events.Kafka.Brokers = brokers
	}
}
