// Package config loads settings for the long-running entry points (queue
// worker, CLI). Values come from the environment, optionally seeded from a
// dotenv file chosen by APP_ENV.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	godotenv "github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Defaults for the worker's status publishing.
const (
	DefaultStatusExchange   = "thumbnail"
	DefaultStatusRoutingKey = "status"
	DefaultWorkers          = 1
)

// WorkerConfig configures cmd/thumbnail-worker.
type WorkerConfig struct {
	RabbitMqURL      string
	RabbitMqQueue    string
	StatusExchange   string
	StatusRoutingKey string
	Workers          int
}

// LoadEnvFiles loads the dotenv file for APP_ENV into the process
// environment and returns its name, or "" when none was found. Existing
// environment variables win over file values.
//
//	APP_ENV unset or "dev": .env.dev, then .env
//	APP_ENV=<name>:         .env.<name>, then .env
func LoadEnvFiles() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	for _, name := range []string{".env." + env, ".env"} {
		if err := godotenv.Load(name); err == nil {
			log.Debug().Str("file", name).Msg("Loaded environment file")
			return name
		}
	}
	log.Debug().Str("appEnv", env).Msg("No env file found, using system environment variables")
	return ""
}

// LoadWorker reads the worker configuration. RABBITMQ_URL and RABBITMQ_QUEUE
// are required.
func LoadWorker() (*WorkerConfig, error) {
	cfg := &WorkerConfig{
		RabbitMqURL:      os.Getenv("RABBITMQ_URL"),
		RabbitMqQueue:    strings.TrimSpace(os.Getenv("RABBITMQ_QUEUE")),
		StatusExchange:   envOr("THUMBNAIL_STATUS_EXCHANGE", DefaultStatusExchange),
		StatusRoutingKey: envOr("THUMBNAIL_STATUS_ROUTING_KEY", DefaultStatusRoutingKey),
		Workers:          DefaultWorkers,
	}

	var missing []string
	if cfg.RabbitMqURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if cfg.RabbitMqQueue == "" {
		missing = append(missing, "RABBITMQ_QUEUE")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s is missing", strings.Join(missing, " or "))
	}

	if raw := os.Getenv("THUMBNAIL_WORKERS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("THUMBNAIL_WORKERS must be a positive integer, got %q", raw)
		}
		cfg.Workers = n
	}
	return cfg, nil
}

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}
