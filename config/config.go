package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Shared secret for access token signatures. Read once at startup,
	// never mutated afterwards.
	AppSecret string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string
	DeviceTopicPrefix  string

	// Scheduling configuration
	OperatingOpenHour  int
	OperatingCloseHour int
	SlotStride         time.Duration

	// Access configuration
	GraceWindow        time.Duration
	TokenTTL           time.Duration
	ResourceTokenTTL   time.Duration
	ResourceTokenAllow bool

	// Lock configuration
	LockTTL       time.Duration
	LockWait      time.Duration
	LockRetry     time.Duration
	SessionTTL    time.Duration
	EventDedupTTL time.Duration

	// Timeout configuration
	DeviceCommandTimeout time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		AppSecret: getEnv("APP_SECRET", "insecure-dev-secret"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "reservation-server"),
		DeviceTopicPrefix:  getEnv("DEVICE_TOPIC_PREFIX", "resbook"),

		// Scheduling
		OperatingOpenHour:  getEnvAsInt("OPERATING_OPEN_HOUR", 9),
		OperatingCloseHour: getEnvAsInt("OPERATING_CLOSE_HOUR", 21),
		SlotStride:         getEnvAsDuration("SLOT_STRIDE", "30m"),

		// Access
		GraceWindow:        getEnvAsDuration("GRACE_WINDOW", "15m"),
		TokenTTL:           getEnvAsDuration("TOKEN_TTL", "24h"),
		ResourceTokenTTL:   getEnvAsDuration("RESOURCE_TOKEN_TTL", "720h"),
		ResourceTokenAllow: getEnvAsBool("RESOURCE_TOKEN_ALLOW", true),

		// Locks
		LockTTL:       getEnvAsDuration("LOCK_TTL", "10s"),
		LockWait:      getEnvAsDuration("LOCK_WAIT", "3s"),
		LockRetry:     getEnvAsDuration("LOCK_RETRY", "50ms"),
		SessionTTL:    getEnvAsDuration("PAYMENT_SESSION_TTL", "10m"),
		EventDedupTTL: getEnvAsDuration("PAYMENT_EVENT_DEDUP_TTL", "24h"),

		// Timeouts
		DeviceCommandTimeout: getEnvAsDuration("DEVICE_COMMAND_TIMEOUT", "5s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
