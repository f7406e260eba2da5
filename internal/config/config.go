// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN for customer lookup. Empty disables lookup (sessions mint without identity).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	OTPTTL             time.Duration `mapstructure:"OTP_TTL"`
	OTPRateWindow      time.Duration `mapstructure:"OTP_RATE_WINDOW"`
	OTPMaxAttempts     int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	StoreSweepInterval time.Duration `mapstructure:"STORE_SWEEP_INTERVAL"`

	SessionTTLBooking   time.Duration `mapstructure:"SESSION_TTL_BOOKING"`
	SessionTTLPortal    time.Duration `mapstructure:"SESSION_TTL_PORTAL"`
	SessionTTLAssistant time.Duration `mapstructure:"SESSION_TTL_ASSISTANT"`

	// Per-lane dispatch budgets in requests per second. 0 disables throttling for that lane.
	DispatchSMSRPS   float64 `mapstructure:"DISPATCH_SMS_RPS"`
	DispatchEmailRPS float64 `mapstructure:"DISPATCH_EMAIL_RPS"`
	DispatchCRMRPS   float64 `mapstructure:"DISPATCH_CRM_RPS"`

	// SMSLocalAPIKey is the SMS Local API key. Empty selects the log sender (development only).
	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// SMTPHost empty selects the log sender for email (development only).
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// RedisAddr enables the Redis dispatch stats recorder; empty keeps stats in memory.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Telemetry (optional). When Kafka brokers are set, events are also written to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// Worker-only: Loki URL and consumer group for the telemetry worker.
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// PolicyFile is an optional Rego file replacing the built-in session access policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// Per-client-IP limit on OTP requests at the HTTP edge.
	HTTPRateRPS   float64 `mapstructure:"HTTP_RATE_RPS"`
	HTTPRateBurst int     `mapstructure:"HTTP_RATE_BURST"`
	// CookieSecure sets the Secure flag on session cookies. Forced on in production.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_RATE_WINDOW", "60s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("STORE_SWEEP_INTERVAL", "60s")
	v.SetDefault("SESSION_TTL_BOOKING", "30m")
	v.SetDefault("SESSION_TTL_PORTAL", "24h")
	v.SetDefault("SESSION_TTL_ASSISTANT", "2h")
	v.SetDefault("DISPATCH_SMS_RPS", 1)
	v.SetDefault("DISPATCH_EMAIL_RPS", 2)
	v.SetDefault("DISPATCH_CRM_RPS", 5)
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "booking-gate-telemetry")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "booking-gate-telemetry-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("HTTP_RATE_RPS", 0.5)
	v.SetDefault("HTTP_RATE_BURST", 5)
	v.SetDefault("COOKIE_SECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.IsProduction() {
		cfg.CookieSecure = true
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"OTP_TTL", c.OTPTTL},
		{"OTP_RATE_WINDOW", c.OTPRateWindow},
		{"STORE_SWEEP_INTERVAL", c.StoreSweepInterval},
		{"SESSION_TTL_BOOKING", c.SessionTTLBooking},
		{"SESSION_TTL_PORTAL", c.SessionTTLPortal},
		{"SESSION_TTL_ASSISTANT", c.SessionTTLAssistant},
	} {
		if d.val <= 0 {
			return fmt.Errorf("config: %s must be a positive duration", d.key)
		}
	}
	if c.OTPMaxAttempts < 1 {
		return errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}
	if c.DispatchSMSRPS < 0 || c.DispatchEmailRPS < 0 || c.DispatchCRMRPS < 0 {
		return errors.New("config: DISPATCH_*_RPS must not be negative")
	}
	if c.HTTPRateRPS < 0 || c.HTTPRateBurst < 0 {
		return errors.New("config: HTTP_RATE_RPS and HTTP_RATE_BURST must not be negative")
	}
	if c.IsProduction() && (c.SMSLocalAPIKey == "" || c.SMTPHost == "") {
		return errors.New("config: SMS_LOCAL_API_KEY and SMTP_HOST are required when APP_ENV=production")
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return errors.New("config: SMTP_FROM must be set when SMTP_HOST is set")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka producer and the worker.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
