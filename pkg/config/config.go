package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Storage       StorageConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Orders        OrdersConfig
	Cron          CronConfig
	CORS          CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GIGMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"GIGMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GIGMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GIGMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GIGMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GIGMARKET_DB_DSN"`
	Driver string `envconfig:"GIGMARKET_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"GIGMARKET_DB_HOST"`
	Port     int    `envconfig:"GIGMARKET_DB_PORT" default:"5432"`
	User     string `envconfig:"GIGMARKET_DB_USER"`
	Password string `envconfig:"GIGMARKET_DB_PASSWORD"`
	Name     string `envconfig:"GIGMARKET_DB_NAME"`
	SSLMode  string `envconfig:"GIGMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GIGMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIGMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIGMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIGMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GIGMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GIGMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"GIGMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"GIGMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GIGMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GIGMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GIGMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GIGMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GIGMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GIGMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GIGMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GIGMARKET_JWT_EXPIRATION_MINUTES" required:"true"`
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"GIGMARKET_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"GIGMARKET_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"GIGMARKET_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"GIGMARKET_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"GIGMARKET_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GIGMARKET_AUTO_MIGRATE" default:"false"`

	// InProcessTimers enables deferred auto-payment callbacks in the API process.
	InProcessTimers bool `envconfig:"GIGMARKET_IN_PROCESS_TIMERS" default:"true"`
}

type StorageConfig struct {
	SupabaseURL       string        `envconfig:"GIGMARKET_SUPABASE_URL" required:"true"`
	ServiceRoleKey    string        `envconfig:"GIGMARKET_SUPABASE_SERVICE_ROLE_KEY" required:"true"`
	Bucket            string        `envconfig:"GIGMARKET_STORAGE_BUCKET" default:"delivery-files"`
	DownloadURLExpiry time.Duration `envconfig:"GIGMARKET_STORAGE_DOWNLOAD_URL_EXPIRY" default:"1h"`
	MaxUploadMB       int           `envconfig:"GIGMARKET_MAX_UPLOAD_MB" default:"50"`
	MaxFilesPerUpload int           `envconfig:"GIGMARKET_MAX_FILES_PER_UPLOAD" default:"10"`
}

// MaxUploadBytes returns the per-file size cap in bytes.
func (s StorageConfig) MaxUploadBytes() int64 {
	if s.MaxUploadMB <= 0 {
		return 0
	}
	return int64(s.MaxUploadMB) * 1024 * 1024
}

type GCPConfig struct {
	ProjectID string `envconfig:"GIGMARKET_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"GIGMARKET_PUBSUB_NOTIFICATION_TOPIC"`
}

// Enabled reports whether notification fan-out to Pub/Sub is configured.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.NotificationTopic) != ""
}

type OrdersConfig struct {
	DefaultResponseTimeHours int `envconfig:"GIGMARKET_ORDERS_DEFAULT_RESPONSE_TIME_HOURS" default:"24"`
	SweepBatchSize           int `envconfig:"GIGMARKET_ORDERS_SWEEP_BATCH_SIZE" default:"100"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"GIGMARKET_CRON_INTERVAL" default:"2m"`
	LockTTL                   time.Duration `envconfig:"GIGMARKET_CRON_LOCK_TTL" default:"5m"`
	NotificationRetentionDays int           `envconfig:"GIGMARKET_NOTIFICATION_RETENTION_DAYS" default:"30"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"GIGMARKET_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
