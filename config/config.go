// Package config provides configuration for the replay service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the replay service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Replay session lifecycle
	IdleTimeout     time.Duration
	CleanupInterval time.Duration

	// Playback scheduling
	MinDwell time.Duration
	MaxDwell time.Duration

	// Broadcast
	SubscriberBuffer int

	// WebSocket settings
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	WSPingInterval time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:      getEnv("DATABASE_URL", "file:replay.db?cache=shared&mode=rwc"),
		IdleTimeout:      time.Duration(getEnvInt("REPLAY_IDLE_TIMEOUT_MS", 1800000)) * time.Millisecond,
		CleanupInterval:  time.Duration(getEnvInt("REPLAY_CLEANUP_INTERVAL_MS", 60000)) * time.Millisecond,
		MinDwell:         time.Duration(getEnvInt("PLAYBACK_MIN_DWELL_MS", 50)) * time.Millisecond,
		MaxDwell:         time.Duration(getEnvInt("PLAYBACK_MAX_DWELL_MS", 5000)) * time.Millisecond,
		SubscriberBuffer: getEnvInt("SUBSCRIBER_BUFFER", 256),
		WSReadTimeout:    time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		WSWriteTimeout:   time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		WSPingInterval:   time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
