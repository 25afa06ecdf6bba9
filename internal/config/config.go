package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Collab   CollabConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	Secret []byte
}

// CollabConfig holds the tunables for the presence and broadcast engine.
type CollabConfig struct {
	InstanceID        string
	CursorThrottle    time.Duration
	IdleTimeout       time.Duration
	GracePeriod       time.Duration
	LockTTL           time.Duration
	SweepInterval     time.Duration
	FeedCapacity      int
	OfflineQueueMax   int
	OfflineMaxRetries int
	InboundRate       int
	InboundBurst      int
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnvOrDefault("PORT", ":8090"),
			ReadTimeout:  getDurationOrDefault("READ_TIMEOUT", "15s"),
			WriteTimeout: getDurationOrDefault("WRITE_TIMEOUT", "15s"),
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnvOrDefault("REDIS_URL", ""),
		},
		JWT: JWTConfig{
			Secret: []byte(getEnvOrFatal("JWT_SECRET")),
		},
		Collab: CollabConfig{
			InstanceID:        getEnvOrDefault("INSTANCE_ID", ""),
			CursorThrottle:    getDurationOrDefault("CURSOR_THROTTLE", "50ms"),
			IdleTimeout:       getDurationOrDefault("IDLE_TIMEOUT", "2m"),
			GracePeriod:       getDurationOrDefault("GRACE_PERIOD", "30s"),
			LockTTL:           getDurationOrDefault("LOCK_TTL", "15s"),
			SweepInterval:     getDurationOrDefault("SWEEP_INTERVAL", "5s"),
			FeedCapacity:      getIntOrDefault("FEED_CAPACITY", 50),
			OfflineQueueMax:   getIntOrDefault("OFFLINE_QUEUE_MAX", 100),
			OfflineMaxRetries: getIntOrDefault("OFFLINE_MAX_RETRIES", 3),
			InboundRate:       getIntOrDefault("INBOUND_RATE", 100),
			InboundBurst:      getIntOrDefault("INBOUND_BURST", 200),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrFatal(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s environment variable is required", key)
	}
	return value
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid duration for %s: %v", key, err)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %v", key, err)
	}
	return intValue
}
