package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Gateway      GatewayConfig
	Orders       OrdersConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
}

// Load reads every section from the environment and then validates the
// sections that have cross-field rules. All validation failures are
// reported together.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolveDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	return errors.Join(
		c.Orders.validate(),
		c.Cron.validate(),
		c.Outbox.validate(),
		c.RateLimit.validate(),
	)
}

type AppConfig struct {
	Env          string `envconfig:"SETTLE_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SETTLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SETTLE_LOG_FORMAT" default:"json"`
	// CORSOrigins is a comma-separated allow list; empty disables CORS headers.
	CORSOrigins []string `envconfig:"SETTLE_APP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLE_SERVICE_KIND" default:"api"`
	// MetricsAddr is where worker binaries expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"SETTLE_WORKER_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLE_DB_DSN"`
	Driver string `envconfig:"SETTLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLE_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLE_DB_USER"`
	LegacyPassword string `envconfig:"SETTLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"SETTLE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLE_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig validates access tokens minted by the identity provider.
type JWTConfig struct {
	Secret            string `envconfig:"SETTLE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SETTLE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SETTLE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SETTLE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SETTLE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"SETTLE_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
	RequestIdempotencyTTL time.Duration `envconfig:"SETTLE_EVENTING_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

// GatewayConfig holds the platform-default gateway credentials.
type GatewayConfig struct {
	KeyID         string `envconfig:"SETTLE_GATEWAY_KEY_ID"`
	KeySecret     string `envconfig:"SETTLE_GATEWAY_KEY_SECRET"`
	WebhookSecret string `envconfig:"SETTLE_GATEWAY_WEBHOOK_SECRET"`
	Currency      string `envconfig:"SETTLE_GATEWAY_CURRENCY" default:"INR"`
}

// HasPlatformCredentials reports whether both platform key fields are set.
func (g GatewayConfig) HasPlatformCredentials() bool {
	return strings.TrimSpace(g.KeyID) != "" && strings.TrimSpace(g.KeySecret) != ""
}

type OrdersConfig struct {
	PendingPaymentTTL        time.Duration `envconfig:"SETTLE_ORDERS_PENDING_PAYMENT_TTL" default:"24h"`
	ExpiryBatchSize          int           `envconfig:"SETTLE_ORDERS_EXPIRY_BATCH_SIZE" default:"100"`
	DefaultCommissionPercent string        `envconfig:"SETTLE_ORDERS_DEFAULT_COMMISSION_PERCENT" default:"10"`
}

// DefaultCommission parses the configured commission percentage.
func (o OrdersConfig) DefaultCommission() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(o.DefaultCommissionPercent))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (o OrdersConfig) validate() error {
	d, err := decimal.NewFromString(strings.TrimSpace(o.DefaultCommissionPercent))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvDefaultCommission, err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvDefaultCommission)
	}
	if o.PendingPaymentTTL < 0 {
		return fmt.Errorf("%s must be non-negative", EnvPendingPaymentTTL)
	}
	return nil
}

// CronConfig drives the cron worker. The lock lease is extended between
// jobs, so LockTTL only has to cover the longest single job.
type CronConfig struct {
	Interval        time.Duration `envconfig:"SETTLE_CRON_INTERVAL" default:"5m"`
	LockTTL         time.Duration `envconfig:"SETTLE_CRON_LOCK_TTL" default:"4m"`
	OutboxRetention time.Duration `envconfig:"SETTLE_CRON_OUTBOX_RETENTION" default:"720h"`
}

func (c CronConfig) validate() error {
	if c.Interval <= 0 || c.LockTTL <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvCronInterval, EnvCronLockTTL)
	}
	return nil
}

// RateLimitConfig throttles payment verification per user. A zero limit disables it.
type RateLimitConfig struct {
	VerifyWindow time.Duration `envconfig:"SETTLE_RATE_LIMIT_VERIFY_WINDOW" default:"1m"`
	VerifyLimit  int           `envconfig:"SETTLE_RATE_LIMIT_VERIFY_LIMIT" default:"10"`
}

func (r RateLimitConfig) validate() error {
	if r.VerifyLimit < 0 {
		return fmt.Errorf("%s must be non-negative", EnvVerifyLimit)
	}
	if r.VerifyLimit > 0 && r.VerifyWindow <= 0 {
		return fmt.Errorf("%s must be positive when a verify limit is set", EnvVerifyWindow)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SETTLE_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"SETTLE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic   string `envconfig:"SETTLE_PUBSUB_ORDERS_TOPIC" default:"settlement-order-events"`
	PaymentsTopic string `envconfig:"SETTLE_PUBSUB_PAYMENTS_TOPIC" default:"settlement-payment-events"`
	AlertsTopic   string `envconfig:"SETTLE_PUBSUB_ALERTS_TOPIC" default:"settlement-ops-alerts"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SETTLE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SETTLE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SETTLE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (o OutboxConfig) validate() error {
	if o.BatchSize < 1 || o.MaxAttempts < 1 {
		return fmt.Errorf("%s and %s must be at least 1", EnvOutboxBatchSize, EnvOutboxMaxAttempts)
	}
	return nil
}
