// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string `mapstructure:"PORT"`
	PostgresURL     string `mapstructure:"POSTGRES_URL"`
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	ConsumerGroup   string `mapstructure:"CONSUMER_GROUP"`
	ResultWorkers   int    `mapstructure:"RESULT_WORKERS"`
	ResultQueueSize int    `mapstructure:"RESULT_QUEUE_SIZE"`
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load binds each field to its environment variable and applies defaults.
// KAFKA_BROKERS may be empty: the service then runs without messaging
// (no creation events, no result consumption).
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("CONSUMER_GROUP", "order-lifecycle")
	v.SetDefault("RESULT_WORKERS", 4)
	v.SetDefault("RESULT_QUEUE_SIZE", 64)

	for _, key := range []string{
		"PORT",
		"POSTGRES_URL",
		"KAFKA_BROKERS",
		"CONSUMER_GROUP",
		"RESULT_WORKERS",
		"RESULT_QUEUE_SIZE",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.PostgresURL == "" {
		return Config{}, fmt.Errorf("POSTGRES_URL is required")
	}

	return cfg, nil
}

// Brokers splits KAFKA_BROKERS into a list; nil when unset.
func (c Config) Brokers() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	return strings.Split(c.KafkaBrokers, ",")
}
