package config

const EnvPrefix = "SETTLE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv            = "SETTLE_APP_ENV"
	EnvPort              = "SETTLE_APP_PORT"
	EnvDBDSN             = "SETTLE_DB_DSN"
	EnvDBHost            = "SETTLE_DB_HOST"
	EnvDBUser            = "SETTLE_DB_USER"
	EnvDBName            = "SETTLE_DB_NAME"
	EnvRedisURL          = "SETTLE_REDIS_URL"
	EnvJWTSecret         = "SETTLE_JWT_SECRET"
	EnvJWTIssuer         = "SETTLE_JWT_ISSUER"
	EnvGatewayKeyID      = "SETTLE_GATEWAY_KEY_ID"
	EnvGatewayKeySecret  = "SETTLE_GATEWAY_KEY_SECRET"
	EnvPendingPaymentTTL = "SETTLE_ORDERS_PENDING_PAYMENT_TTL"
	EnvDefaultCommission = "SETTLE_ORDERS_DEFAULT_COMMISSION_PERCENT"
	EnvCronInterval      = "SETTLE_CRON_INTERVAL"
	EnvCronLockTTL       = "SETTLE_CRON_LOCK_TTL"
	EnvOutboxBatchSize   = "SETTLE_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxMaxAttempts = "SETTLE_OUTBOX_MAX_ATTEMPTS"
	EnvVerifyLimit       = "SETTLE_RATE_LIMIT_VERIFY_LIMIT"
	EnvVerifyWindow      = "SETTLE_RATE_LIMIT_VERIFY_WINDOW"
)

