// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	DBUser string `env:"DB_USER"`
	DBPass string `env:"DB_PASSWORD"`
	DBHost string `env:"DB_HOST" envDefault:"localhost"`
	DBPort string `env:"DB_PORT" envDefault:"5432"`
	DBName string `env:"DB_NAME"`

	// Empty AMQP URL keeps dispatch in-process on the in-memory queue.
	AMQPURL string `env:"AMQP_URL"`

	DispatchConcurrency int           `env:"DISPATCH_CONCURRENCY" envDefault:"8"`
	SendTimeout         time.Duration `env:"SEND_TIMEOUT" envDefault:"15s"`
	SchedulerPoll       time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"30s"`

	// Reference timezone for the calling-hours gate; the organization's
	// operating timezone, not per-recipient.
	CallingHoursTZ string `env:"CALLING_HOURS_TZ" envDefault:"America/Chicago"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN builds the Postgres connection string, preferring DATABASE_URL.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName,
	)
}
