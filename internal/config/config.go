package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the process reads from its environment.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	Platform         string
	PlatformBaseURL  string
	PlatformAccount  string
	PlatformPassword string
	PollInterval     time.Duration

	RetentionDays int
}

// Load reads configuration from environment variables, applying defaults
// for everything optional.
func Load() *Config {
	return &Config{
		Port:        getEnv("API_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=fleettrack port=5432 sslmode=disable"),
		RedisURL:    getEnv("REDIS_URL", ""),
		NATSURL:     getEnv("NATS_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-me"),

		Platform:         getEnv("PLATFORM", ""),
		PlatformBaseURL:  getEnv("PLATFORM_BASE_URL", ""),
		PlatformAccount:  getEnv("PLATFORM_ACCOUNT", ""),
		PlatformPassword: getEnv("PLATFORM_PASSWORD", ""),
		PollInterval:     time.Duration(getEnvAsInt("POLL_INTERVAL_SECONDS", 30)) * time.Second,

		RetentionDays: getEnvAsInt("RETENTION_DAYS", 90),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
