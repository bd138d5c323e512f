package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Market   MarketConfig
	Webhook  WebhookConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// MarketConfig holds settlement policy settings
type MarketConfig struct {
	// AllowEarlyResolution lets resolvers vote before closes_at. Off by
	// default: markets must close before resolution begins.
	AllowEarlyResolution bool
	// TreasuryBotName names the sink account for payout rounding residue.
	TreasuryBotName string
	// MaxRequestsPerMinute is the per-bot action budget.
	MaxRequestsPerMinute int
	// CloseSweepInterval is how often the closer job runs.
	CloseSweepInterval time.Duration
}

// WebhookConfig holds delivery retry settings
type WebhookConfig struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	QueueDepth     int
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "prediclaw"),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: []string{getEnv("ALLOWED_ORIGIN", "http://localhost:3000")},
		},
		Market: MarketConfig{
			AllowEarlyResolution: getEnvBool("ALLOW_EARLY_RESOLUTION", false),
			TreasuryBotName:      getEnv("TREASURY_BOT_NAME", "treasury"),
			MaxRequestsPerMinute: getEnvInt("MAX_REQUESTS_PER_MINUTE", 60),
			CloseSweepInterval:   getEnvDuration("CLOSE_SWEEP_INTERVAL", 30*time.Second),
		},
		Webhook: WebhookConfig{
			MaxAttempts:    getEnvInt("WEBHOOK_MAX_ATTEMPTS", 6),
			BaseBackoff:    getEnvDuration("WEBHOOK_BASE_BACKOFF", 5*time.Second),
			QueueDepth:     getEnvInt("WEBHOOK_QUEUE_DEPTH", 8),
			PollInterval:   getEnvDuration("WEBHOOK_POLL_INTERVAL", 2*time.Second),
			RequestTimeout: getEnvDuration("WEBHOOK_REQUEST_TIMEOUT", 10*time.Second),
		},
	}

	if config.Webhook.MaxAttempts < 1 {
		return nil, fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be at least 1")
	}
	if config.Webhook.QueueDepth < 1 {
		return nil, fmt.Errorf("WEBHOOK_QUEUE_DEPTH must be at least 1")
	}

	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
