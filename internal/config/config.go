// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all service settings.
type Config struct {
	AppName string
	Addr    string
	DBPath  string

	LogFile  string
	LogLevel string

	StaticDir   string
	CORSOrigins []string

	PageSize       int
	MaxUploadBytes int64

	FluentBit FluentBitConfig
}

// FluentBitConfig configures log forwarding.
type FluentBitConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// Load reads an optional .env file (or the given paths) and then the
// environment. Variables already set in the environment win over the file.
func Load(envPaths ...string) (*Config, error) {
	if err := godotenv.Load(envPaths...); err != nil {
		if len(envPaths) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	cfg := &Config{
		AppName:     getEnv("APP_NAME", "ponudbe"),
		Addr:        getEnv("PONUDBE_ADDR", ":8080"),
		DBPath:      getEnv("PONUDBE_DB", "ponudbe.sqlite3"),
		LogFile:     getEnv("PONUDBE_LOG", ""),
		LogLevel:    getEnv("PONUDBE_LOG_LEVEL", "info"),
		StaticDir:   getEnv("PONUDBE_STATIC_DIR", ""),
		CORSOrigins: splitList(getEnv("PONUDBE_CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.PageSize, err = getEnvAsInt("PONUDBE_PAGE_SIZE", 20); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("PONUDBE_PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}

	maxUploadMB, err := getEnvAsInt("PONUDBE_MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}
	if maxUploadMB <= 0 {
		return nil, fmt.Errorf("PONUDBE_MAX_UPLOAD_MB must be positive, got %d", maxUploadMB)
	}
	cfg.MaxUploadBytes = int64(maxUploadMB) << 20

	if cfg.FluentBit.Enabled, err = getEnvAsBool("FLUENTBIT_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.FluentBit.Enabled {
		cfg.FluentBit.Host = os.Getenv("FLUENTBIT_HOST")
		if cfg.FluentBit.Host == "" {
			slog.Warn("FLUENTBIT_ENABLED is set but FLUENTBIT_HOST is empty, disabling Fluent Bit")
			cfg.FluentBit.Enabled = false
		}
		if cfg.FluentBit.Port, err = getEnvAsInt("FLUENTBIT_PORT", 24224); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
