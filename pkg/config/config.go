package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is applied by envconfig when resolving variable names.
const EnvPrefix = "whistl"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "WHISTL_DB_DSN"
	EnvDBHost = "WHISTL_DB_HOST"
	EnvDBUser = "WHISTL_DB_USER"
	EnvDBName = "WHISTL_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Mailgun       MailgunConfig
	WebPush       WebPushConfig
	Anthropic     AnthropicConfig
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
	Env          string `envconfig:"WHISTL_APP_ENV" required:"true"`
	Port         string `envconfig:"WHISTL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WHISTL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WHISTL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"WHISTL_DB_DSN"`
	Driver string `envconfig:"WHISTL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WHISTL_DB_HOST"`
	LegacyPort     int    `envconfig:"WHISTL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WHISTL_DB_USER"`
	LegacyPassword string `envconfig:"WHISTL_DB_PASSWORD"`
	LegacyName     string `envconfig:"WHISTL_DB_NAME"`
	LegacySSLMode  string `envconfig:"WHISTL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WHISTL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WHISTL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WHISTL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WHISTL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WHISTL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WHISTL_REDIS_ADDR"`
	Password     string        `envconfig:"WHISTL_REDIS_PASSWORD"`
	DB           int           `envconfig:"WHISTL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WHISTL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WHISTL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WHISTL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WHISTL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WHISTL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"WHISTL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"WHISTL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"WHISTL_JWT_EXPIRATION_MINUTES" required:"true"`
	SessionTTLMinutes int    `envconfig:"WHISTL_SESSION_TTL_MINUTES" default:"43200"`
}

// SessionTTL returns the redis session lifetime configured in minutes.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.SessionTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"WHISTL_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"WHISTL_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"WHISTL_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"WHISTL_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"WHISTL_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"WHISTL_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"WHISTL_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"WHISTL_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"WHISTL_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"WHISTL_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"WHISTL_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WHISTL_AUTO_MIGRATE" default:"false"`
}

type MailgunConfig struct {
	APIKey      string `envconfig:"WHISTL_MAILGUN_API_KEY"`
	Domain      string `envconfig:"WHISTL_MAILGUN_DOMAIN"`
	DefaultFrom string `envconfig:"WHISTL_MAILGUN_FROM_EMAIL"`
}

type WebPushConfig struct {
	VAPIDPublicKey  string `envconfig:"WHISTL_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"WHISTL_VAPID_PRIVATE_KEY"`
	Subscriber      string `envconfig:"WHISTL_VAPID_SUBSCRIBER"`
}

type AnthropicConfig struct {
	APIKey string `envconfig:"WHISTL_ANTHROPIC_API_KEY"`
	Model  string `envconfig:"WHISTL_ANTHROPIC_MODEL" default:"claude-3-5-haiku-latest"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
