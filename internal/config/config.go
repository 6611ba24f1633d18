package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultBaseURL          = "https://servicios.ine.es/wstempus/js/ES"
	defaultRequestTimeout   = 120 * time.Second
	defaultDatasetPause     = 500 * time.Millisecond
	defaultPersistTimeout   = 5 * time.Minute
	defaultReferenceDataDir = "shared/data"
	defaultPort             = 8000
	defaultAllowedOrigins   = "http://localhost:3000,http://localhost:5173,http://127.0.0.1:3000,http://127.0.0.1:5173"
)

// Config holds runtime configuration shared by the API server and the collector.
type Config struct {
	DatabaseURL        string
	Port               int
	BaseURL            string
	RequestTimeout     time.Duration
	ReferenceDataPath  string
	DatasetPause       time.Duration
	PersistTimeout     time.Duration
	CollectionSchedule string
	AllowedOrigins     []string
	DryRun             bool
	Log                LogConfig
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string
	Encoding    string
	Development bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		Port:              defaultPort,
		BaseURL:           defaultBaseURL,
		RequestTimeout:    defaultRequestTimeout,
		ReferenceDataPath: defaultReferenceDataDir,
		DatasetPause:      defaultDatasetPause,
		PersistTimeout:    defaultPersistTimeout,
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if portStr := strings.TrimSpace(os.Getenv("PORT")); portStr != "" {
		port, err := parsePort(portStr)
		if err != nil {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
		cfg.Port = port
	} else if portStr := strings.TrimSpace(os.Getenv("API_PORT")); portStr != "" {
		port, err := parsePort(portStr)
		if err != nil {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
		cfg.Port = port
	}

	if v := strings.TrimSpace(os.Getenv("INE_API_BASE_URL")); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	var err error
	if cfg.RequestTimeout, err = durationEnv("INE_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return cfg, err
	}
	if cfg.DatasetPause, err = durationEnv("COLLECTOR_DATASET_PAUSE", cfg.DatasetPause); err != nil {
		return cfg, err
	}
	if cfg.PersistTimeout, err = durationEnv("COLLECTOR_PERSIST_TIMEOUT", cfg.PersistTimeout); err != nil {
		return cfg, err
	}
	if cfg.PersistTimeout <= 0 {
		return cfg, errors.New("COLLECTOR_PERSIST_TIMEOUT must be positive")
	}

	if v := strings.TrimSpace(os.Getenv("REFERENCE_DATA_PATH")); v != "" {
		cfg.ReferenceDataPath = v
	}

	cfg.CollectionSchedule = strings.TrimSpace(os.Getenv("COLLECTION_SCHEDULE"))

	origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS"))
	if origins == "" {
		origins = defaultAllowedOrigins
	}
	cfg.AllowedOrigins = splitList(origins)

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_ENCODING")); v != "" {
		cfg.Log.Encoding = v
	}
	cfg.Log.Development = truthy(os.Getenv("LOG_DEVELOPMENT"))

	cfg.DryRun = truthy(os.Getenv("DRY_RUN"))

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truthy(v string) bool {
	v = strings.TrimSpace(v)
	return v == "1" || strings.EqualFold(v, "true")
}
