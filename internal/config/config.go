// Package config loads environment-driven settings, optionally from a .env
// file during development.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the metal engine.
type Config struct {
	Port        string
	DatabaseURL string // empty selects the in-memory store
	RedisURL    string // empty disables the read-through cache
	JWTSecret   string
	CacheTTL    time.Duration // TTL for cached metal/holding reads
	LockTimeout time.Duration // max wait for a per-metal lock before 503
}

// Load reads environment variables (optionally via .env) into Config.
func Load() *Config {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),
		CacheTTL:    getEnvDuration("CACHE_TTL", 30*time.Second),
		LockTimeout: getEnvDuration("LOCK_TIMEOUT", 5*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
