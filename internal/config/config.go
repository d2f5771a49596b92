package config

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/tracing"
)

// AppConfig holds process-level settings: the minimal operational HTTP
// surface (/healthz, /readyz) and the internal event bus URL.
type AppConfig struct {
	APIPort              string `env:"PORT" envDefault:"12222"`
	RabbitMQURL          string `env:"RABBITMQ_URL"`
	ShutdownGracePeriodS int    `env:"SHUTDOWN_GRACE_PERIOD_SECONDS" envDefault:"30"`
}

// DatabaseConfig is the Postgres connection the Store is built on.
type DatabaseConfig struct {
	Host            string `env:"POSTGRES_HOST,required"`
	Port            string `env:"POSTGRES_PORT,required"`
	User            string `env:"POSTGRES_USER,required"`
	DBName          string `env:"POSTGRES_DB_NAME,required"`
	Password        string `env:"POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"require"`
}

// SMTPConfig is the upstream relay the SMTP Client pool dials (spec.md §6
// "Worker configuration").
type SMTPConfig struct {
	Host         string `env:"SMTP_HOST,required"`
	Port         int    `env:"SMTP_PORT" envDefault:"587"`
	User         string `env:"SMTP_USER"`
	Password     string `env:"SMTP_PASS"`
	FromDefault  string `env:"SMTP_FROM_DEFAULT"`
	SystemDomain string `env:"SMTP_SYSTEM_DOMAIN" envDefault:"mailengine.local"`
	PoolSize     int    `env:"SMTP_POOL_SIZE" envDefault:"10"`
	// ImplicitTLS selects a direct TLS dial (port 465 style) over the
	// default STARTTLS negotiation (port 587/25 style).
	ImplicitTLS bool `env:"SMTP_IMPLICIT_TLS" envDefault:"false"`
}

// Addr returns the "host:port" pair the SMTP Client dials.
func (c *SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WorkerConfig tunes the Email Worker's claim loop and retry policy.
type WorkerConfig struct {
	Concurrency       int `env:"WORKER_CONCURRENCY" envDefault:"10"`
	MaxRetries        int `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelayMs      int `env:"RETRY_DELAY_MS" envDefault:"5000"`
	PollIntervalMs    int `env:"POLL_INTERVAL_MS" envDefault:"5000"`
	VisibilityTimeoutMs int `env:"VISIBILITY_TIMEOUT_MS" envDefault:"5000"`
	DKIMCacheTTLSeconds int `env:"DKIM_CACHE_TTL_SECONDS" envDefault:"300"`
	Debug             bool `env:"DEBUG" envDefault:"false"`
}

// WebhookConfig tunes the Webhook Dispatcher's claim loop and retry policy.
type WebhookConfig struct {
	Concurrency     int `env:"WEBHOOK_CONCURRENCY" envDefault:"10"`
	MaxRetries      int `env:"MAX_WEBHOOK_RETRIES" envDefault:"5"`
	RequestTimeoutS int `env:"WEBHOOK_TIMEOUT_SECONDS" envDefault:"30"`
	ClaimGuardS     int `env:"WEBHOOK_CLAIM_GUARD_SECONDS" envDefault:"30"`
}

// Config aggregates every concern's env-parsed struct, matching the
// teacher's config/init.go shape.
type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	Database       *DatabaseConfig
	SMTP           *SMTPConfig
	Worker         *WorkerConfig
	Webhook        *WebhookConfig
}

func InitConfig() (*Config, error) {
	cfg := &Config{
		AppConfig: &AppConfig{},
		Logger:    &logger.Config{},
		Tracing:   &tracing.JaegerConfig{},
		Database:  &DatabaseConfig{},
		SMTP:      &SMTPConfig{},
		Worker:    &WorkerConfig{},
		Webhook:   &WebhookConfig{},
	}

	if err := godotenv.Load(); err != nil {
		log.Print("Unable to load .env file")
	}

	if err := env.Parse(cfg); err != nil {
		log.Fatalf("Error loading mailengine config: %v", err)
	}

	return cfg, nil
}
