package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

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

	Redis     RedisConfig
	Directory DirectoryConfig
	Metering  MeteringConfig
}

// RedisConfig configures the usage counter store backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DirectoryConfig controls the provider/model directory refresh loop.
type DirectoryConfig struct {
	RefreshInterval time.Duration
}

// MeteringConfig controls quota enforcement and store timeouts.
type MeteringConfig struct {
	QuotaEnforcementEnabled bool
	StoreTimeout            time.Duration
	CounterGrace            time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "tokenmeter"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tokenmeter"),
		DBUser:            getenv("DATABASE_USER", "tokenmeter"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Directory: DirectoryConfig{
			RefreshInterval: time.Duration(getenvInt("DIRECTORY_REFRESH_SECONDS", 300)) * time.Second,
		},
		Metering: MeteringConfig{
			QuotaEnforcementEnabled: getenvBool("QUOTA_ENFORCEMENT_ENABLED", true),
			StoreTimeout:            time.Duration(getenvInt("STORE_TIMEOUT_MS", 500)) * time.Millisecond,
			CounterGrace:            time.Duration(getenvInt("COUNTER_GRACE_SECONDS", 5)) * time.Second,
		},
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
