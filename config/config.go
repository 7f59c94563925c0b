package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"complaintengine/models"
)

// Config holds application configuration
type Config struct {
	Env          string
	Database     DatabaseConfig
	Server       ServerConfig
	Escalation   EscalationConfig
	Notification NotificationConfig
	Redis        RedisConfig
	Auth         AuthConfig
	SLA          SLAConfig
	Assignment   AssignmentConfig
	Intake       IntakeConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver      string // DB_DRIVER: mysql (default) or sqlite3
	DatabaseURL string // DATABASE_URL - takes precedence over individual vars
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
}

// DSN builds the driver connection string. Times are always read back as UTC.
func (d DatabaseConfig) DSN() string {
	if d.DatabaseURL != "" {
		return d.DatabaseURL
	}
	if d.Driver == "sqlite3" {
		return d.DBName
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&clientFoundRows=true",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// EscalationConfig controls the background sweep
type EscalationConfig struct {
	Enabled  bool          // ESCALATION_WORKER_ENABLED
	Interval time.Duration // ESCALATION_WORKER_INTERVAL_SECONDS
}

// NotificationConfig controls delivery and retries
type NotificationConfig struct {
	PushProviderURL   string
	PushProviderKey   string
	SendGridAPIKey    string
	EmailFrom         string
	SMSGatewayURL     string
	SMSAPIKey         string
	PushBatchSize     int
	WorkerPoolSize    int
	ProviderTimeout   time.Duration
	MaxAttempts       int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	RetryInterval     time.Duration
	SendRateLimit     float64 // requests per second per client on send-notification
	SendRateBurst     int
}

// Dispatcher converts the environment settings into the dispatcher's tuning
func (n NotificationConfig) Dispatcher() *models.NotificationConfig {
	cfg := models.DefaultNotificationConfig()
	if n.MaxAttempts > 0 {
		cfg.DefaultMaxAttempts = n.MaxAttempts
	}
	if n.InitialRetryDelay > 0 {
		cfg.InitialRetryDelay = n.InitialRetryDelay
	}
	if n.MaxRetryDelay > 0 {
		cfg.MaxRetryDelay = n.MaxRetryDelay
	}
	if n.PushBatchSize > 0 {
		cfg.PushBatchSize = n.PushBatchSize
	}
	if n.WorkerPoolSize > 0 {
		cfg.WorkerPoolSize = n.WorkerPoolSize
	}
	if n.ProviderTimeout > 0 {
		cfg.ProviderTimeout = n.ProviderTimeout
	}
	if n.RetryInterval > 0 {
		cfg.WorkerInterval = n.RetryInterval
	}
	return cfg
}

// RedisConfig selects the event bus; an empty Addr keeps events in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// AuthConfig holds token settings
type AuthConfig struct {
	JWTSecret      string
	AdminToken     string
	AdminTokenHash string // bcrypt hash, preferred over AdminToken
}

// SLAConfig points at an optional rule table file
type SLAConfig struct {
	RulesFile string
}

// AssignmentConfig tunes the claim transaction
type AssignmentConfig struct {
	ClaimRetries int
}

// IntakeConfig limits complaint submissions per citizen
type IntakeConfig struct {
	MaxPerDay       int           // INTAKE_MAX_PER_DAY, 0 disables
	DuplicateWindow time.Duration // INTAKE_DUPLICATE_WINDOW_SECONDS
}

// LoadConfig loads configuration from environment variables.
// Supports DATABASE_URL or individual DB_* variables.
func LoadConfig() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "production"),
		Database: DatabaseConfig{
			Driver:      getEnv("DB_DRIVER", "mysql"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "3306"),
			User:        os.Getenv("DB_USER"),
			Password:    os.Getenv("DB_PASSWORD"),
			DBName:      getEnv("DB_NAME", "complaints"),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("PORT", getEnv("SERVER_PORT", "8080")),
		},
		Escalation: EscalationConfig{
			Enabled:  getEnvBool("ESCALATION_WORKER_ENABLED", true),
			Interval: getEnvSeconds("ESCALATION_WORKER_INTERVAL_SECONDS", 10*time.Minute),
		},
		Notification: NotificationConfig{
			PushProviderURL:   os.Getenv("PUSH_PROVIDER_URL"),
			PushProviderKey:   os.Getenv("PUSH_PROVIDER_KEY"),
			SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
			EmailFrom:         getEnv("EMAIL_FROM", "noreply@complaints.local"),
			SMSGatewayURL:     os.Getenv("SMS_GATEWAY_URL"),
			SMSAPIKey:         os.Getenv("SMS_API_KEY"),
			PushBatchSize:     getEnvInt("PUSH_BATCH_SIZE", 500),
			WorkerPoolSize:    getEnvInt("NOTIFICATION_WORKER_POOL_SIZE", 8),
			ProviderTimeout:   getEnvSeconds("PUSH_PROVIDER_TIMEOUT_SECONDS", 10*time.Second),
			MaxAttempts:       getEnvInt("NOTIFICATION_MAX_ATTEMPTS", 3),
			InitialRetryDelay: getEnvSeconds("NOTIFICATION_RETRY_INITIAL_SECONDS", time.Minute),
			MaxRetryDelay:     getEnvSeconds("NOTIFICATION_RETRY_MAX_SECONDS", 30*time.Minute),
			RetryInterval:     getEnvSeconds("NOTIFICATION_WORKER_INTERVAL_SECONDS", 30*time.Second),
			SendRateLimit:     getEnvFloat("SEND_NOTIFICATION_RATE", 5),
			SendRateBurst:     getEnvInt("SEND_NOTIFICATION_BURST", 10),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_EVENTS_CHANNEL", "complaint-events"),
		},
		Auth: AuthConfig{
			JWTSecret:      os.Getenv("JWT_SECRET"),
			AdminToken:     os.Getenv("ADMIN_TOKEN"),
			AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		},
		SLA: SLAConfig{
			RulesFile: os.Getenv("SLA_RULES_FILE"),
		},
		Assignment: AssignmentConfig{
			ClaimRetries: getEnvInt("ASSIGNMENT_CLAIM_RETRIES", 3),
		},
		Intake: IntakeConfig{
			MaxPerDay:       getEnvInt("INTAKE_MAX_PER_DAY", 10),
			DuplicateWindow: getEnvSeconds("INTAKE_DUPLICATE_WINDOW_SECONDS", 24*time.Hour),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSeconds reads a whole number of seconds; zero or negative keeps the default
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if seconds := getEnvInt(key, 0); seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
