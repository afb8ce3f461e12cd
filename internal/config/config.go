// Package config loads imgrelayd's process configuration from the
// environment. Missing required variables are fatal at boot, per the
// external-interfaces contract: there is no partial-configuration mode.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the fully-resolved process configuration. It is constructed
// once in main and passed by reference to every component that needs
// it; nothing reaches back into the environment after Load returns.
type Config struct {
	ChatID int64
	Tokens []string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     int
	DBDatabase string

	RedisAddr string
	RedisDB   int

	TempDir string

	WorkerBatchSize      int
	SweepInterval        int // seconds
	OffloadQueueSize     int
	HTTPAddr             string
	MetricsAddr          string
	LogLevel             string
	MaxUploadBytes       int64
}

// Load reads and validates the configuration from the environment.
func Load() (*Config, error) {
	var missing []string
	req := func(name string) string {
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	chatIDStr := req("SENDBOT_CHAT_ID")
	tokensStr := req("SENDBOT_TOKENS")
	dbUser := req("DB_USER")
	dbPassword := req("DB_PASSWORD")
	dbHost := req("DB_HOST")
	dbDatabase := req("DB_DATABASE")

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("SENDBOT_CHAT_ID must be an integer: %w", err)
	}

	var tokens []string
	for _, t := range strings.Split(tokensStr, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("SENDBOT_TOKENS must contain at least one token")
	}

	cfg := &Config{
		ChatID:           chatID,
		Tokens:           tokens,
		DBUser:           dbUser,
		DBPassword:       dbPassword,
		DBHost:           dbHost,
		DBPort:           envInt("DB_PORT", 3306),
		DBDatabase:       dbDatabase,
		RedisAddr:        envString("REDIS_ADDR", "redis:6379"),
		RedisDB:          envInt("REDIS_DB", 0),
		TempDir:          envString("TEMP_DIR", "/tmp/imgrelay"),
		WorkerBatchSize:  envInt("WORKER_BATCH_SIZE", 10),
		SweepInterval:    envInt("SWEEP_INTERVAL_SECONDS", 3600),
		OffloadQueueSize: envInt("OFFLOAD_QUEUE_SIZE", 256),
		HTTPAddr:         envString("HTTP_ADDR", ":8080"),
		MetricsAddr:      envString("METRICS_ADDR", ""),
		LogLevel:         envString("LOG_LEVEL", "info"),
		MaxUploadBytes:   20 * 1024 * 1024,
	}
	return cfg, nil
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
