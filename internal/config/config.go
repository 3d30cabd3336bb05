package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type QueueConfig struct {
	DrainInterval   time.Duration
	PromoteInterval time.Duration
	BatchSize       int
	BulkDelay       time.Duration
}

func LoadAll() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: mustEnv("POSTGRES_URL"),
		},
		Queue: QueueConfig{
			DrainInterval:   time.Duration(getEnvInt("QUEUE_DRAIN_SECONDS", 5)) * time.Second,
			PromoteInterval: time.Duration(getEnvInt("QUEUE_PROMOTE_SECONDS", 60)) * time.Second,
			BatchSize:       getEnvInt("QUEUE_BATCH_SIZE", 5),
			BulkDelay:       time.Duration(getEnvInt("BULK_DELAY_MS", 1500)) * time.Millisecond,
		},
		Redis: loadRedisConfig(),
	}

	validate(cfg)
	return cfg, nil
}

func loadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
		TTL:      time.Duration(getEnvInt("REDIS_TTL_SECONDS", 86400)) * time.Second,
	}
}

func validate(cfg *Config) {
	if cfg.Queue.BatchSize <= 0 {
		panic("QUEUE_BATCH_SIZE must be > 0")
	}
	if cfg.Queue.DrainInterval <= 0 {
		panic("QUEUE_DRAIN_SECONDS must be > 0")
	}
	if cfg.Queue.PromoteInterval <= 0 {
		panic("QUEUE_PROMOTE_SECONDS must be > 0")
	}
}

func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required env var: %s", key))
	}
	return val
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}
