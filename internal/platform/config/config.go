package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr                  string
	Environment           string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	SnapshotTTL           time.Duration
	FiscalConfigPath      string
	FiscalRefreshInterval time.Duration
	DataEncryptionKey     string
	ExportDir             string
	LogLevel              string
	RunMigrations         bool
	MigrationsDir         string
	MaxBodyBytes          int64
	RateLimitPerMinute    int
	MetricsEnabled        bool
}

// Load reads the process environment. A .env file in the working directory,
// when present, fills variables that are not already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:                  getEnv("APP_ADDR", ":8080"),
		Environment:           getEnv("APP_ENV", "development"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		SnapshotTTL:           getEnvDuration("SNAPSHOT_TTL", 45*24*time.Hour),
		FiscalConfigPath:      getEnv("FISCAL_CONFIG_PATH", ""),
		FiscalRefreshInterval: getEnvDuration("FISCAL_REFRESH_INTERVAL", time.Hour),
		DataEncryptionKey:     getEnv("DATA_ENCRYPTION_KEY", ""),
		ExportDir:             getEnv("EXPORT_DIR", "storage/exports"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		RunMigrations:         getEnvBool("RUN_MIGRATIONS", true),
		MigrationsDir:         getEnv("MIGRATIONS_DIR", "migrations"),
		MaxBodyBytes:          int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		MetricsEnabled:        getEnvBool("METRICS_ENABLED", true),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production to seal declaration exports")
		}
		if strings.TrimSpace(c.FiscalConfigPath) == "" {
			return fmt.Errorf("FISCAL_CONFIG_PATH must be set in production")
		}
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative")
	}
	if c.SnapshotTTL <= 0 {
		return fmt.Errorf("SNAPSHOT_TTL must be positive")
	}
	if c.FiscalRefreshInterval < 0 {
		return fmt.Errorf("FISCAL_REFRESH_INTERVAL must not be negative")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if strings.TrimSpace(c.ExportDir) == "" {
		return fmt.Errorf("EXPORT_DIR must not be empty")
	}
	return nil
}
