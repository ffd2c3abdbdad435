package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	InstanceID  string
	Mode        string
	Environment string
	HTTPAddr    string

	DefaultOrgID int64

	OTLPEndpoint string

	Cloud CloudConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TokenEncryptionKey string

	Stripe    StripeConfig
	Google    OAuthClientConfig
	Microsoft OAuthClientConfig

	Email EmailConfig

	RateLimit RateLimitConfig

	Scheduler SchedulerConfig

	WebhookTimeoutSeconds int
}

// SchedulerConfig controls the background job loop.
type SchedulerConfig struct {
	RunIntervalSeconds int
	BatchSize          int
	EnabledJobs        []string
}

// RateLimitConfig controls Redis-backed throttling of AI usage recording.
// The limiter shares the application Redis connection settings.
type RateLimitConfig struct {
	Enabled        bool
	AIRecordRate   float64
	AIRecordBurst  int
	LockTTLSeconds int
}

// StripeConfig carries credentials for the Stripe REST API and webhook endpoint.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// OAuthClientConfig carries client credentials for an email provider.
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type CloudConfig struct {
	OrganizationID   string
	OrganizationName string
	Metrics          CloudMetricsConfig
}

type CloudMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

// Module wires configuration loading for the application.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewScoringConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	mode := normalizeMode(getenv("APP_MODE", ModeOSS))
	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "freshcrm"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		InstanceID:   strings.TrimSpace(getenv("INSTANCE_ID", "")),
		Mode:         mode,
		Environment:  environment,
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		DefaultOrgID: getenvInt64("DEFAULT_ORG", 0),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		Cloud: CloudConfig{
			OrganizationID:   strings.TrimSpace(getenv("CLOUD_ORGANIZATION_ID", "")),
			OrganizationName: getenv("CLOUD_ORGANIZATION_NAME", ""),
			Metrics: CloudMetricsConfig{
				Enabled:   getenvBool("CLOUD_METRICS_ENABLED", true),
				Exporter:  strings.ToLower(getenv("CLOUD_METRICS_EXPORTER", "")),
				Endpoint:  strings.TrimSpace(getenv("CLOUD_METRICS_ENDPOINT", "")),
				AuthToken: strings.TrimSpace(getenv("CLOUD_METRICS_AUTH_TOKEN", "")),
			},
		},
		DBType:        getenv("DATABASE_TYPE", "postgres"),
		DBHost:        getenv("DATABASE_HOST", "localhost"),
		DBPort:        getenv("DATABASE_PORT", "5432"),
		DBName:        getenv("DATABASE_NAME", "postgres"),
		DBUser:        getenv("DATABASE_USER", "postgres"),
		DBPassword:    getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:     getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),
		TokenEncryptionKey: getenv("TOKEN_ENCRYPTION_KEY", "freshcrm-dev-insecure-key"),
		Stripe: StripeConfig{
			APIKey:        strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			SuccessURL:    getenv("STRIPE_SUCCESS_URL", "http://localhost:3000/settings/billing?status=success"),
			CancelURL:     getenv("STRIPE_CANCEL_URL", "http://localhost:3000/settings/billing?status=cancelled"),
		},
		Google: OAuthClientConfig{
			ClientID:     strings.TrimSpace(getenv("GOOGLE_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("GOOGLE_CLIENT_SECRET", "")),
		},
		Microsoft: OAuthClientConfig{
			ClientID:     strings.TrimSpace(getenv("MICROSOFT_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("MICROSOFT_CLIENT_SECRET", "")),
			TenantID:     strings.TrimSpace(getenv("MICROSOFT_TENANT_ID", "common")),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@freshcrm.local"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			AIRecordRate:   getenvFloat("RATE_LIMIT_AI_RECORD_RATE", 20),
			AIRecordBurst:  int(getenvInt64("RATE_LIMIT_AI_RECORD_BURST", 40)),
			LockTTLSeconds: int(getenvInt64("RATE_LIMIT_LOCK_TTL_SECONDS", 30)),
		},
		Scheduler: SchedulerConfig{
			RunIntervalSeconds: int(getenvInt64("SCHEDULER_RUN_INTERVAL_SECONDS", 60)),
			BatchSize:          int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
			EnabledJobs:        getenvList("SCHEDULER_ENABLED_JOBS"),
		},
		WebhookTimeoutSeconds: int(getenvInt64("WEBHOOK_TIMEOUT_SECONDS", 10)),
	}

	return cfg
}

const (
	ModeOSS        = "oss"
	ModeCloud      = "cloud"
	ModeStandalone = "standalone"
)

func (c Config) IsCloud() bool {
	return c.Mode == ModeCloud
}

func normalizeMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ModeCloud:
		return ModeCloud
	case ModeStandalone, ModeOSS:
		return ModeOSS
	default:
		return ModeOSS
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
