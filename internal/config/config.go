package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Reporting ReportingConfig
	Sheets    SheetsConfig
	Notifier  NotifierConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI          string
	DBName       string
	Transactions bool
}

// StorageConfig selects and configures the blob store for equipment images.
type StorageConfig struct {
	Driver        string
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	PublicBaseURL string
	URLExpiry     time.Duration
}

// AuthConfig holds session signing and throttling options.
type AuthConfig struct {
	JWTSecret          string
	SessionTTL         time.Duration
	SignInPerMinute    int
	MinPasswordLength  int
	SessionStoreDriver string
}

// RedisConfig holds the session store connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	SnapshotCron string
	OverdueCron  string
	Timezone     string
}

// SheetsConfig contains configuration required to export reports to Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	Range           string
}

// Enabled reports whether report export is configured.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsPath != ""
}

// NotifierConfig configures the outbound reminder webhook.
type NotifierConfig struct {
	WebhookURL string
	Token      string
	Timeout    time.Duration
}

// Enabled reports whether reminders can be delivered.
func (n NotifierConfig) Enabled() bool {
	return n.WebhookURL != ""
}

// LogConfig selects the logger level and encoder.
type LogConfig struct {
	Level string
	Env   string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		Server: ServerConfig{
			Port:           getenvWithDefault("APP_PORT", "8080"),
			AllowedOrigins: splitList(getenvWithDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		MongoDB: MongoDBConfig{
			URI:          os.Getenv("MONGODB_URI"),
			DBName:       getenvWithDefault("MONGODB_DB_NAME", "equiptrack"),
			Transactions: getBool("MONGODB_TRANSACTIONS", true, &errs),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(getenvWithDefault("STORAGE_DRIVER", "memory")),
			Bucket:        os.Getenv("STORAGE_BUCKET"),
			Region:        getenvWithDefault("STORAGE_REGION", "us-east-1"),
			Endpoint:      os.Getenv("STORAGE_ENDPOINT"),
			AccessKey:     os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey:     os.Getenv("STORAGE_SECRET_KEY"),
			UsePathStyle:  getBool("STORAGE_USE_PATH_STYLE", false, &errs),
			PublicBaseURL: os.Getenv("STORAGE_PUBLIC_BASE_URL"),
			URLExpiry:     getDuration("STORAGE_URL_EXPIRY", time.Hour, &errs),
		},
		Auth: AuthConfig{
			JWTSecret:          os.Getenv("AUTH_JWT_SECRET"),
			SessionTTL:         getDuration("AUTH_SESSION_TTL", 24*time.Hour, &errs),
			SignInPerMinute:    getInt("AUTH_SIGNIN_PER_MINUTE", 5, &errs),
			MinPasswordLength:  getInt("AUTH_MIN_PASSWORD_LENGTH", 6, &errs),
			SessionStoreDriver: strings.ToLower(getenvWithDefault("AUTH_SESSION_STORE", "redis")),
		},
		Redis: RedisConfig{
			Addr:     getenvWithDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0, &errs),
		},
		Reporting: ReportingConfig{
			SnapshotCron: getenvWithDefault("REPORT_SNAPSHOT_CRON", "5 0 * * *"),
			OverdueCron:  getenvWithDefault("OVERDUE_REMINDER_CRON", "0 8 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "UTC"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_REPORTS_ID"),
			Range:           getenvWithDefault("GOOGLE_SHEET_REPORTS_RANGE", "Reports!A:L"),
		},
		Notifier: NotifierConfig{
			WebhookURL: os.Getenv("NOTIFIER_WEBHOOK_URL"),
			Token:      os.Getenv("NOTIFIER_TOKEN"),
			Timeout:    getDuration("NOTIFIER_TIMEOUT", 15*time.Second, &errs),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
			Env:   getenvWithDefault("APP_ENV", "production"),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	}

	switch c.Storage.Driver {
	case "memory":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("STORAGE_BUCKET must be provided when STORAGE_DRIVER is s3")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER %q is not supported", c.Storage.Driver)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("AUTH_JWT_SECRET must be at least 16 bytes")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("AUTH_SESSION_TTL must be positive")
	}
	if c.Auth.SignInPerMinute <= 0 {
		return errors.New("AUTH_SIGNIN_PER_MINUTE must be positive")
	}
	switch c.Auth.SessionStoreDriver {
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("REDIS_ADDR must be provided")
		}
	case "memory":
	default:
		return fmt.Errorf("AUTH_SESSION_STORE %q is not supported", c.Auth.SessionStoreDriver)
	}

	if c.Reporting.SnapshotCron == "" {
		return errors.New("REPORT_SNAPSHOT_CRON must be provided")
	}
	if c.Reporting.OverdueCron == "" {
		return errors.New("OVERDUE_REMINDER_CRON must be provided")
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is invalid: %w", c.Reporting.Timezone, err)
	}

	if c.Sheets.Enabled() && c.Sheets.SpreadsheetID == "" {
		return errors.New("GOOGLE_SHEET_REPORTS_ID must be provided with GOOGLE_SHEETS_CREDENTIALS_PATH")
	}

	return nil
}

// Location returns the reporting timezone. Validate guarantees it loads.
func (c ReportingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return parsed
}

func getInt(key string, fallback int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
