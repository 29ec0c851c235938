package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module expects Config to be supplied by the caller, which reads it before
// the graph is built to choose the store driver.
var Module = fx.Module("config",
	fx.Provide(NewLimitsHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// StoreDriver selects the unit of work implementation: "memory" or "gorm".
	StoreDriver string

	AuthCookieSecure bool
	AuthJWTSecret    string
	AuthTokenTTL     time.Duration

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

	Storage StorageConfig
	Email   EmailConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LimitsFile string
}

type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	UsePathStyle    bool
}

type EmailConfig struct {
	Provider       string
	From           string
	FromName       string
	AppURL         string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SendgridAPIKey string
}

const (
	StoreDriverMemory = "memory"
	StoreDriverGorm   = "gorm"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "tasklane"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		StoreDriver:      normalizeStoreDriver(getenv("STORE_DRIVER", StoreDriverGorm)),
		AuthCookieSecure: authCookieSecure,
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthTokenTTL:     getenvDuration("AUTH_TOKEN_TTL", 7*24*time.Hour),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tasklane"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Storage: StorageConfig{
			Bucket:          strings.TrimSpace(getenv("STORAGE_BUCKET", "")),
			Region:          getenv("STORAGE_REGION", "us-east-1"),
			Endpoint:        strings.TrimSpace(getenv("STORAGE_ENDPOINT", "")),
			AccessKeyID:     strings.TrimSpace(getenv("STORAGE_ACCESS_KEY_ID", "")),
			SecretAccessKey: strings.TrimSpace(getenv("STORAGE_SECRET_ACCESS_KEY", "")),
			PublicBaseURL:   strings.TrimRight(strings.TrimSpace(getenv("STORAGE_PUBLIC_BASE_URL", "")), "/"),
			UsePathStyle:    getenvBool("STORAGE_USE_PATH_STYLE", false),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(getenv("EMAIL_PROVIDER", "noop")),
			From:           getenv("EMAIL_FROM", "no-reply@tasklane.local"),
			FromName:       getenv("EMAIL_FROM_NAME", "Tasklane"),
			AppURL:         strings.TrimRight(getenv("APP_URL", "http://localhost:3000"), "/"),
			SMTPHost:       getenv("SMTP_HOST", "localhost"),
			SMTPPort:       getenvInt("SMTP_PORT", 1025),
			SMTPUsername:   getenv("SMTP_USERNAME", ""),
			SMTPPassword:   getenv("SMTP_PASSWORD", ""),
			SendgridAPIKey: strings.TrimSpace(getenv("SENDGRID_API_KEY", "")),
		},

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		LimitsFile: strings.TrimSpace(getenv("LIMITS_FILE", "")),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeStoreDriver(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StoreDriverMemory:
		return StoreDriverMemory
	default:
		return StoreDriverGorm
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
