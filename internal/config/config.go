package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Identity
	AuthJWTSecret string

	// Payment gateway
	GatewayKeyID         string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration
	Currency             string

	// Redis (ledger count cache)
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	LedgerCacheTTL time.Duration

	// Notification queue
	UseMemoryQueue       bool
	NotificationQueueURL string
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string

	// Temporal scheduler
	ReminderLead       time.Duration
	ReminderInterval   time.Duration
	ImminentLead       time.Duration
	ImminentInterval   time.Duration
	ExpiringLead       time.Duration
	ExpiringInterval   time.Duration
	ExpiryInterval     time.Duration
	CompletionInterval time.Duration
	StalePendingAfter  time.Duration
	StaleInterval      time.Duration
	SweepBatchSize     int

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		GatewayKeyID:         getEnv("PAYMENT_GATEWAY_KEY_ID", ""),
		GatewayWebhookSecret: getEnv("PAYMENT_GATEWAY_WEBHOOK_SECRET", ""),
		GatewayTimeout:       getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
		Currency:             getEnv("CURRENCY", "USD"),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		LedgerCacheTTL: getEnvAsDuration("LEDGER_CACHE_TTL", 30*time.Second),

		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		NotificationQueueURL: getEnv("NOTIFICATION_QUEUE_URL", ""),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ReminderLead:       getEnvAsDuration("REMINDER_LEAD", 24*time.Hour),
		ReminderInterval:   getEnvAsDuration("REMINDER_INTERVAL", 5*time.Minute),
		ImminentLead:       getEnvAsDuration("IMMINENT_LEAD", 15*time.Minute),
		ImminentInterval:   getEnvAsDuration("IMMINENT_INTERVAL", time.Minute),
		ExpiringLead:       getEnvAsDuration("SUBSCRIPTION_EXPIRING_LEAD", 72*time.Hour),
		ExpiringInterval:   getEnvAsDuration("SUBSCRIPTION_EXPIRING_INTERVAL", time.Hour),
		ExpiryInterval:     getEnvAsDuration("SUBSCRIPTION_EXPIRY_INTERVAL", 10*time.Minute),
		CompletionInterval: getEnvAsDuration("COMPLETION_INTERVAL", 5*time.Minute),
		StalePendingAfter:  getEnvAsDuration("STALE_PENDING_AFTER", 48*time.Hour),
		StaleInterval:      getEnvAsDuration("STALE_INTERVAL", time.Hour),
		SweepBatchSize:     getEnvAsInt("SWEEP_BATCH_SIZE", 100),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
