package config

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "GIGMARKET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv          = "GIGMARKET_APP_ENV"
	EnvPort            = "GIGMARKET_APP_PORT"
	EnvDBDSN           = "GIGMARKET_DB_DSN"
	EnvDBHost          = "GIGMARKET_DB_HOST"
	EnvDBUser          = "GIGMARKET_DB_USER"
	EnvDBName          = "GIGMARKET_DB_NAME"
	EnvRedisURL        = "GIGMARKET_REDIS_URL"
	EnvJWTSecret       = "GIGMARKET_JWT_SECRET"
	EnvJWTIssuer       = "GIGMARKET_JWT_ISSUER"
	EnvJWTExpMins      = "GIGMARKET_JWT_EXPIRATION_MINUTES"
	EnvSupabaseURL     = "GIGMARKET_SUPABASE_URL"
	EnvSupabaseKey     = "GIGMARKET_SUPABASE_SERVICE_ROLE_KEY"
	EnvStorageBucket   = "GIGMARKET_STORAGE_BUCKET"
	EnvNotificationTop = "GIGMARKET_PUBSUB_NOTIFICATION_TOPIC"
	EnvCronInterval    = "GIGMARKET_CRON_INTERVAL"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
