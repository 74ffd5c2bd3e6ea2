package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
)

var defaultCategories = []string{
	"Groceries 🛒",
	"Household 🏠",
	"Transport 🚌",
	"Entertainment 🎉",
	"Dining Out 🍽️",
	"Shopping 🛍️",
	"Bills 🧾",
	"Other 🗂️",
}

// Config holds all configuration for the application
type Config struct {
	// Telegram, disabled when the token is empty
	TelegramToken string
	ChatID        int64

	// Storage
	StoreBackend    string
	MongoURI        string
	MongoDB         string
	MongoCollection string
	SQLiteDBPath    string

	// HTTP API
	HTTPPort string

	// AMQP, disabled when the URL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	Timezone string
	Location *time.Location
	LogLevel string

	NotificationRetention int
	RolloverSchedule      string
	InsightsSchedule      string
	Categories            []string
	PendingTTL            time.Duration
}

// Load reads configuration from the environment, after loading .env when
// present. It does not validate; call Validate.
func Load() *Config {
	// a missing .env is normal in containers
	_ = godotenv.Load()

	return &Config{
		TelegramToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		ChatID:        getEnvInt64("TELEGRAM_CHAT_ID", 0),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		MongoURI:        getEnv("MONGODB_URI", ""),
		MongoDB:         getEnv("MONGODB_DB", "budget_tracker"),
		MongoCollection: getEnv("MONGODB_COLLECTION", "records"),
		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", "./data/budget.db"),

		HTTPPort: getEnv("HTTP_PORT", "8080"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "budget"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "notifications"),

		Timezone: getEnv("TIMEZONE", "UTC"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		NotificationRetention: getEnvInt("NOTIFICATION_RETENTION", 50),
		RolloverSchedule:      getEnv("ROLLOVER_SCHEDULE", "5 0 * * *"),
		InsightsSchedule:      getEnv("INSIGHTS_SCHEDULE", "0 9,18 * * *"),
		Categories:            getEnvList("CATEGORIES", defaultCategories),
		PendingTTL:            getEnvDuration("PENDING_TTL", 30*time.Minute),
	}
}

// TelegramEnabled reports whether the bot should run.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// IsAuthorizedChat checks whether a message comes from the configured chat.
func (c *Config) IsAuthorizedChat(chatID int64) bool {
	return chatID == c.ChatID
}

// Validate validates the configuration and returns an error listing every
// problem found. It also resolves Location from Timezone.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.HTTPPort); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.HTTPPort))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			errors = append(errors, "MONGODB_URI is required when using mongo backend")
		}
		if c.MongoDB == "" {
			errors = append(errors, "MONGODB_DB is required when using mongo backend")
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid store backend '%s': must be one of [memory mongo sqlite]", c.StoreBackend))
	}

	if c.TelegramEnabled() && c.ChatID == 0 {
		errors = append(errors, "TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if loc, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	} else {
		c.Location = loc
	}

	if c.NotificationRetention < 1 || c.NotificationRetention > 1000 {
		errors = append(errors, fmt.Sprintf("invalid notification retention %d: must be between 1 and 1000", c.NotificationRetention))
	}

	for name, spec := range map[string]string{"ROLLOVER_SCHEDULE": c.RolloverSchedule, "INSIGHTS_SCHEDULE": c.InsightsSchedule} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': %v", name, spec, err))
		}
	}

	if len(c.Categories) == 0 {
		errors = append(errors, "at least one category is required")
	}

	if c.PendingTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid pending TTL %v: must be at least 1 minute", c.PendingTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
