package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Verdenroz/champion-recap/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	RiotAPIKey           string
	DBPath               string
	ServerPort           string
	LogLevel             string
	WorkerCount          int
	AggregationThreshold int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		RiotAPIKey:           getEnv("RIOT_API_KEY", ""),
		DBPath:               getEnv("DB_PATH", "recap.db"),
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		WorkerCount:          getEnvInt("WORKER_COUNT", constants.DefaultWorkerCount),
		AggregationThreshold: getEnvInt("AGGREGATION_THRESHOLD", constants.DefaultAggregationThreshold),
	}

	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("RIOT_API_KEY is required")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if cfg.AggregationThreshold < 1 {
		return nil, fmt.Errorf("AGGREGATION_THRESHOLD must be at least 1")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("worker_count", cfg.WorkerCount).
		Int("aggregation_threshold", cfg.AggregationThreshold).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
