package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Stripe      StripeConfig   `mapstructure:"stripe"`
	Fees        FeesConfig     `mapstructure:"fees"`
	Cognito     CognitoConfig  `mapstructure:"cognito"`
	CORS        CORSConfig     `mapstructure:"cors"`
	RateLimit   RateLimit      `mapstructure:"rate_limit"`
	Cron        CronConfig     `mapstructure:"cron"`
	Secrets     SecretsConfig  `mapstructure:"secrets"`
	Logger      LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP, gRPC health and metrics listener configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Port     int    `mapstructure:"port"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StripeConfig names where the Stripe secrets live in the configured secret manager
type StripeConfig struct {
	SecretKeyPath     string `mapstructure:"secret_key_path"`
	WebhookSecretPath string `mapstructure:"webhook_secret_path"`
}

// FeesConfig holds the percentage components of the fee formula
type FeesConfig struct {
	StripeFeePercent  float64 `mapstructure:"stripe_fee_percent"`
	ServiceFeePercent float64 `mapstructure:"service_fee_percent"`
}

// CognitoConfig identifies the user pool whose tokens are accepted
type CognitoConfig struct {
	Region       string        `mapstructure:"region"`
	UserPoolID   string        `mapstructure:"user_pool_id"`
	AppClientID  string        `mapstructure:"app_client_id"`
	JWKSCacheTTL time.Duration `mapstructure:"jwks_cache_ttl"`
}

// Issuer is the iss claim Cognito stamps on the pool's tokens
func (c CognitoConfig) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// JWKSURL is where the pool publishes its signing keys
func (c CognitoConfig) JWKSURL() string {
	return c.Issuer() + "/.well-known/jwks.json"
}

// CORSConfig lists origins allowed to call the API from a browser
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimit configures the per-IP limiter
type RateLimit struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CronConfig configures scheduled jobs and the cron HTTP endpoint
type CronConfig struct {
	Secret              string `mapstructure:"secret"`
	ExpireLinksSchedule string `mapstructure:"expire_links_schedule"`
	Enabled             bool   `mapstructure:"enabled"`
}

// SecretsConfig selects and configures the secret manager backend
type SecretsConfig struct {
	Manager       string        `mapstructure:"manager"` // env, aws, vault or local
	AWSRegion     string        `mapstructure:"aws_region"`
	AWSEndpoint   string        `mapstructure:"aws_endpoint"`
	VaultAddress  string        `mapstructure:"vault_address"`
	VaultToken    string        `mapstructure:"vault_token"`
	VaultMount    string        `mapstructure:"vault_mount"`
	LocalBasePath string        `mapstructure:"local_base_path"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// bindings maps config keys to their environment variables
var bindings = map[string]string{
	"environment": "ENVIRONMENT",

	"server.host":             "SERVER_HOST",
	"server.http_port":        "HTTP_PORT",
	"server.grpc_port":        "GRPC_PORT",
	"server.metrics_port":     "METRICS_PORT",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",

	"database.url":       "DATABASE_URL",
	"database.host":      "DB_HOST",
	"database.port":      "DB_PORT",
	"database.user":      "DB_USER",
	"database.password":  "DB_PASSWORD",
	"database.name":      "DB_NAME",
	"database.ssl_mode":  "DB_SSL_MODE",
	"database.max_conns": "DB_MAX_CONNS",
	"database.min_conns": "DB_MIN_CONNS",

	"stripe.secret_key_path":     "STRIPE_SECRET_PATH",
	"stripe.webhook_secret_path": "STRIPE_WEBHOOK_SECRET_PATH",

	"fees.stripe_fee_percent":  "STRIPE_FEE_PERCENT",
	"fees.service_fee_percent": "SERVICE_FEE_PERCENT",

	"cognito.region":         "COGNITO_REGION",
	"cognito.user_pool_id":   "COGNITO_USER_POOL_ID",
	"cognito.app_client_id":  "COGNITO_APP_CLIENT_ID",
	"cognito.jwks_cache_ttl": "COGNITO_JWKS_CACHE_TTL",

	"cors.allowed_origins": "CORS_ALLOWED_ORIGINS",

	"rate_limit.requests_per_second": "RATE_LIMIT_RPS",
	"rate_limit.burst":               "RATE_LIMIT_BURST",

	"cron.secret":                "CRON_SECRET",
	"cron.expire_links_schedule": "EXPIRE_LINKS_SCHEDULE",
	"cron.enabled":               "CRON_ENABLED",

	"secrets.manager":         "SECRET_MANAGER",
	"secrets.aws_region":      "AWS_REGION",
	"secrets.aws_endpoint":    "AWS_SECRETS_ENDPOINT",
	"secrets.vault_address":   "VAULT_ADDR",
	"secrets.vault_token":     "VAULT_TOKEN",
	"secrets.vault_mount":     "VAULT_MOUNT",
	"secrets.local_base_path": "LOCAL_SECRETS_PATH",
	"secrets.cache_ttl":       "SECRET_CACHE_TTL",

	"logger.level": "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "payme")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("stripe.secret_key_path", "STRIPE_SECRET")
	v.SetDefault("stripe.webhook_secret_path", "STRIPE_WEBHOOK_SECRET")

	v.SetDefault("fees.stripe_fee_percent", 0.0)
	v.SetDefault("fees.service_fee_percent", 0.0)

	v.SetDefault("cognito.region", "us-east-1")
	v.SetDefault("cognito.jwks_cache_ttl", time.Hour)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("cron.expire_links_schedule", "@every 15m")
	v.SetDefault("cron.enabled", true)

	v.SetDefault("secrets.manager", "env")
	v.SetDefault("secrets.aws_region", "us-east-1")
	v.SetDefault("secrets.vault_mount", "secret")
	v.SetDefault("secrets.local_base_path", "./secrets")
	v.SetDefault("secrets.cache_ttl", 5*time.Minute)

	v.SetDefault("logger.level", "info")
}

// Load reads configuration from a .env file (if present) and the environment
func Load() (*Config, error) {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	cfg.Secrets.Manager = strings.ToLower(cfg.Secrets.Manager)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on configuration the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" && c.Database.Password == "" {
		errs = append(errs, errors.New("DATABASE_URL or DB_PASSWORD is required"))
	}
	combined := c.Fees.StripeFeePercent + c.Fees.ServiceFeePercent
	if combined < 0 || combined >= 100 {
		errs = append(errs, fmt.Errorf("STRIPE_FEE_PERCENT + SERVICE_FEE_PERCENT must be in [0, 100), got %v", combined))
	}
	if c.Cognito.UserPoolID == "" || c.Cognito.AppClientID == "" {
		errs = append(errs, errors.New("COGNITO_USER_POOL_ID and COGNITO_APP_CLIENT_ID are required"))
	}
	switch c.Secrets.Manager {
	case "env", "aws", "local":
	case "vault":
		if c.Secrets.VaultAddress == "" {
			errs = append(errs, errors.New("VAULT_ADDR is required when SECRET_MANAGER=vault"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SECRET_MANAGER %q", c.Secrets.Manager))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// splitList flattens comma-separated entries and drops blanks
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
