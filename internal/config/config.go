package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Log      LogConfig
	Watch    WatchConfig
	Dispatch DispatchConfig
}

// ServerConfig holds HTTP server configuration. There is no write timeout:
// the SSE watch endpoints keep responses open indefinitely.
type ServerConfig struct {
	Port        string
	ReadTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration. The pool is sized for the pub/sub
// connections the watch endpoints hold open alongside the request traffic.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // zerolog level: debug, info, warn, error
	Pretty bool   // console writer for local development
}

// WatchConfig holds the sync watcher tunables.
type WatchConfig struct {
	PollInterval   time.Duration
	ResubscribeMin time.Duration
	ResubscribeMax time.Duration
}

// DispatchConfig holds dispatch and requeue configuration.
type DispatchConfig struct {
	RiderShare  float64 // fraction of the service fee paid out as rider earnings
	RequeueSpec string  // cron expression with seconds
	RequeueAge  time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			ReadTimeout: getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "dispatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 50),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 5),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "dispatch-service"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getBoolEnv("LOG_PRETTY", false),
		},
		Watch: WatchConfig{
			PollInterval:   getDurationEnv("WATCH_POLL_INTERVAL", 3*time.Second),
			ResubscribeMin: getDurationEnv("WATCH_RESUBSCRIBE_MIN", 500*time.Millisecond),
			ResubscribeMax: getDurationEnv("WATCH_RESUBSCRIBE_MAX", 15*time.Second),
		},
		Dispatch: DispatchConfig{
			RiderShare:  getFloatEnv("DISPATCH_RIDER_SHARE", 0.8),
			RequeueSpec: getEnv("DISPATCH_REQUEUE_SPEC", "*/30 * * * * *"),
			RequeueAge:  getDurationEnv("DISPATCH_REQUEUE_AGE", 2*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
