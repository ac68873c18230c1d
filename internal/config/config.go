package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	DataDir    string `env:"DATA_DIR" envDefault:"./data"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	GrantSecret string        `env:"GRANT_SECRET" envDefault:"change-me-in-production-32-bytes!"`
	GrantTTL    time.Duration `env:"GRANT_TTL" envDefault:"12h"`

	// AWS integration. Face indexing and signed URLs are disabled until
	// both a region and a bucket are configured.
	AWSRegion          string  `env:"AWS_REGION"`
	S3Bucket           string  `env:"S3_BUCKET"`
	FaceCollectionID   string  `env:"FACE_COLLECTION_ID" envDefault:"fotomatch-faces"`
	FaceMatchThreshold float64 `env:"FACE_MATCH_THRESHOLD" envDefault:"80"`

	// Stripe. Checkout and webhook reconciliation are disabled until both
	// keys are configured.
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string `env:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL   string `env:"CHECKOUT_CANCEL_URL"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	SMTPFrom string `env:"SMTP_FROM"`

	// Optional photographer-facing notification endpoint.
	NotifyWebhookURL    string `env:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string `env:"NOTIFY_WEBHOOK_SECRET"`

	WorkerCount         int `env:"WORKER_COUNT" envDefault:"2"`
	CleanupIntervalMins int `env:"CLEANUP_INTERVAL_MINS" envDefault:"60"`
	TelemetryRetainDays int `env:"TELEMETRY_RETAIN_DAYS" envDefault:"90"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.CheckoutSuccessURL == "" {
		cfg.CheckoutSuccessURL = cfg.BaseURL + "/checkout/success"
	}
	if cfg.CheckoutCancelURL == "" {
		cfg.CheckoutCancelURL = cfg.BaseURL + "/checkout/cancel"
	}
	return cfg, nil
}

// FacesConfigured reports whether the identity-match provider has credentials.
func (c *Config) FacesConfigured() bool {
	return c.AWSRegion != "" && c.S3Bucket != ""
}

// PaymentsConfigured reports whether the payment provider has credentials.
func (c *Config) PaymentsConfigured() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}
