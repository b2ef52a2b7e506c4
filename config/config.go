/*
Package config loads the server configuration and builds the logger.

SOURCES (later wins):
  1. Built-in defaults
  2. A .env file in the working directory, if present
  3. Process environment
  4. Command-line flags (applied by cmd/server)

KEYS:
  PORT, DB_PATH, LOG_LEVEL, LOG_FORMAT,
  CACHE_BACKEND (memory|redis|none), CACHE_SIZE, CACHE_TTL_SECONDS,
  REDIS_ADDR, REDIS_PASSWORD, REDIS_DB,
  SESSION_TTL_MINUTES, SESSION_SWEEP_SECONDS,
  MAX_UPLOAD_MB, INGEST_HEADER_ROWS, DEFAULT_PAGE_SIZE, CORS_ORIGINS
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheRedis  CacheBackend = "redis"
	CacheNone   CacheBackend = "none"
)

// Config is the server configuration.
type Config struct {
	Port      int    `validate:"min=1,max=65535"`
	DBPath    string `validate:"required"`
	LogLevel  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `validate:"oneof=json text"`

	CacheBackend  CacheBackend `validate:"oneof=memory redis none"`
	CacheSize     int          `validate:"min=1"`
	CacheTTL      time.Duration
	RedisAddr     string `validate:"required_if=CacheBackend redis"`
	RedisPassword string
	RedisDB       int `validate:"min=0"`

	SessionTTL        time.Duration
	SessionSweepEvery time.Duration

	MaxUploadBytes  int64 `validate:"min=1"`
	HeaderRows      int   `validate:"min=-1"`
	DefaultPageSize int   `validate:"min=1,max=500"`
	CORSOrigins     []string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:              8080,
		DBPath:            "stockcount.db",
		LogLevel:          "info",
		LogFormat:         "json",
		CacheBackend:      CacheMemory,
		CacheSize:         256,
		CacheTTL:          300 * time.Second,
		RedisAddr:         "localhost:6379",
		SessionTTL:        120 * time.Minute,
		SessionSweepEvery: 60 * time.Second,
		MaxUploadBytes:    10 << 20,
		HeaderRows:        1,
		DefaultPageSize:   10,
		CORSOrigins:       []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Load reads .env (if any) and the environment on top of the defaults.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := FromEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from getenv on top of the defaults.
func FromEnv(getenv func(string) string) Config {
	cfg := Defaults()
	env := envReader(getenv)

	cfg.Port = env.intOr("PORT", cfg.Port)
	cfg.DBPath = env.stringOr("DB_PATH", cfg.DBPath)
	cfg.LogLevel = strings.ToLower(env.stringOr("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(env.stringOr("LOG_FORMAT", cfg.LogFormat))

	cfg.CacheBackend = CacheBackend(strings.ToLower(env.stringOr("CACHE_BACKEND", string(cfg.CacheBackend))))
	cfg.CacheSize = env.intOr("CACHE_SIZE", cfg.CacheSize)
	cfg.CacheTTL = time.Duration(env.intOr("CACHE_TTL_SECONDS", int(cfg.CacheTTL/time.Second))) * time.Second
	cfg.RedisAddr = env.stringOr("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = env.stringOr("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = env.intOr("REDIS_DB", cfg.RedisDB)

	cfg.SessionTTL = time.Duration(env.intOr("SESSION_TTL_MINUTES", int(cfg.SessionTTL/time.Minute))) * time.Minute
	cfg.SessionSweepEvery = time.Duration(env.intOr("SESSION_SWEEP_SECONDS", int(cfg.SessionSweepEvery/time.Second))) * time.Second

	cfg.MaxUploadBytes = int64(env.intOr("MAX_UPLOAD_MB", int(cfg.MaxUploadBytes>>20))) << 20
	cfg.HeaderRows = env.intOr("INGEST_HEADER_ROWS", cfg.HeaderRows)
	cfg.DefaultPageSize = env.intOr("DEFAULT_PAGE_SIZE", cfg.DefaultPageSize)

	if v := env.stringOr("CORS_ORIGINS", ""); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	return cfg
}

var validate = validator.New()

// Validate checks value ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// =============================================================================
// ENV HELPERS
// =============================================================================

type envReader func(string) string

func (e envReader) stringOr(key, def string) string {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return def
	}
	return v
}

// intOr returns def when key is unset or not a number.
func (e envReader) intOr(key string, def int) int {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
