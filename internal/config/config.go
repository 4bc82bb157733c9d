package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// BoundsPolicy decides what a failed bounds fetch does to the view.
type BoundsPolicy string

const (
	// BoundsSilent logs the failure and keeps the previous viewport.
	BoundsSilent BoundsPolicy = "silent"
	// BoundsSurface also shows an inline message next to the map.
	BoundsSurface BoundsPolicy = "surface"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	BackendBaseURL  string
	BackendTimeout  time.Duration
	BackendRetries  int
	BoundsPolicy    BoundsPolicy
	HTTPAddr        string
	DBPath          string
	ShutdownTimeout time.Duration

	StatusInterval time.Duration
	SessionTTL     time.Duration

	TileCacheDir    string
	TileCacheMaxAge time.Duration
	TileCacheSize   int

	DefaultBasemap string
	DefaultOpacity float64
	DefaultCountry string

	ImageCacheDir string
	OpenAIAPIKey  string

	SessionSecret  string
	MetricsAddr    string
	AuditRetention time.Duration
}

// LoadEnvFile merges a .env file into the process environment. Missing files are ignored,
// variables already set win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(envOrDefault(key, def))
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("invalid %s", key))
		}
		return d
	}
	integer := func(key string, def, min int) int {
		n, err := strconv.Atoi(envOrDefault(key, strconv.Itoa(def)))
		if err != nil || n < min {
			errs = append(errs, fmt.Errorf("invalid %s", key))
		}
		return n
	}

	cfg := &Config{
		BackendBaseURL:  strings.TrimRight(envOrDefault("BACKEND_API_BASE_URL", "http://127.0.0.1:8000"), "/"),
		BackendTimeout:  duration("BACKEND_TIMEOUT", "30s"),
		BackendRetries:  integer("BACKEND_RETRIES", 0, 0),
		BoundsPolicy:    BoundsPolicy(strings.ToLower(envOrDefault("BOUNDS_FAILURE_POLICY", string(BoundsSilent)))),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		DBPath:          envOrDefault("DB_PATH", "data/hazardmap.db"),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", "5s"),
		StatusInterval:  duration("STATUS_INTERVAL", "5m"),
		SessionTTL:      duration("SESSION_TTL", "24h"),
		TileCacheDir:    envOrDefault("TILE_CACHE_DIR", "data/tiles"),
		TileCacheMaxAge: duration("TILE_CACHE_MAX_AGE", "6h"),
		TileCacheSize:   integer("TILE_CACHE_SIZE", 2048, 1),
		DefaultBasemap:  envOrDefault("DEFAULT_BASEMAP", "light"),
		DefaultCountry:  strings.ToUpper(envOrDefault("DEFAULT_COUNTRY", "AT")),
		ImageCacheDir:   envOrDefault("IMAGE_CACHE_DIR", "data/images"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		AuditRetention:  duration("AUDIT_RETENTION", "720h"),
	}

	opacity, err := strconv.ParseFloat(envOrDefault("DEFAULT_OPACITY", "0.55"), 64)
	if err != nil || opacity < 0 || opacity > 1 {
		errs = append(errs, errors.New("invalid DEFAULT_OPACITY"))
	}
	cfg.DefaultOpacity = opacity

	if u, err := url.Parse(cfg.BackendBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("invalid BACKEND_API_BASE_URL"))
	}
	switch cfg.BoundsPolicy {
	case BoundsSilent, BoundsSurface:
	default:
		errs = append(errs, errors.New("invalid BOUNDS_FAILURE_POLICY"))
	}
	if cfg.StatusInterval == 0 {
		errs = append(errs, errors.New("invalid STATUS_INTERVAL"))
	}
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < 32 {
		errs = append(errs, errors.New("invalid SESSION_SECRET: need at least 32 bytes"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
