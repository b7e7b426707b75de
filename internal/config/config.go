package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL       string `env:"RABBITMQ_URL,required=true"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	WebhookURL        string `env:"WEBHOOK_URL,required=true"`
	BaseURL           string `env:"BASE_URL,default=https://app.example.com"`
	DefaultTimezone   string `env:"DEFAULT_TIMEZONE,default=Europe/Paris"`
	TickIntervalSec   int    `env:"TICK_INTERVAL_SEC,default=60"`
	BatchLimit        int    `env:"BATCH_LIMIT,default=500"`
	RateLimitPerSec   int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=16"`
	OpsPort           int    `env:"OPS_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
