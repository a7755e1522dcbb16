// Package config loads tracker settings from .env, the environment and an
// optional YAML file. Environment values win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// APIBaseURL is the REST backend base, e.g. https://api.example.com/v1.
	APIBaseURL string `validate:"required,url"`
	// HubURL is the websocket push channel endpoint, ws:// or wss://.
	HubURL string `validate:"required"`
	// RoutingURL is the OSRM-style routing provider base URL.
	RoutingURL string `validate:"required,url"`
	// Token is the bearer token presented to the backend and the hub.
	Token string `validate:"required"`

	LocationInterval     time.Duration `validate:"gt=0"`
	MonitorInterval      time.Duration `validate:"gt=0"`
	RouteDebounce        time.Duration `validate:"gt=0"`
	RequestTimeout       time.Duration `validate:"gt=0"`
	MaxReconnectAttempts int           `validate:"gt=0"`

	// MetricsAddr serves Prometheus metrics when non-empty, e.g. ":9102".
	MetricsAddr string
	LogLevel    string
}

// fileConfig is the YAML file shape. Intervals are integer milliseconds,
// matching the *_MS environment variables.
type fileConfig struct {
	APIBaseURL string `yaml:"apiBaseUrl"`
	HubURL     string `yaml:"hubUrl"`
	RoutingURL string `yaml:"routingUrl"`
	Token      string `yaml:"token"`

	LocationIntervalMs   int `yaml:"locationIntervalMs"`
	MonitorIntervalMs    int `yaml:"monitorIntervalMs"`
	RouteDebounceMs      int `yaml:"routeDebounceMs"`
	RequestTimeoutMs     int `yaml:"requestTimeoutMs"`
	MaxReconnectAttempts int `yaml:"maxReconnectAttempts"`

	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel"`
}

// overlay applies the file's set values onto cfg; zero values keep defaults.
func (f *fileConfig) overlay(cfg *Config) error {
	if f.APIBaseURL != "" {
		cfg.APIBaseURL = f.APIBaseURL
	}
	if f.HubURL != "" {
		cfg.HubURL = f.HubURL
	}
	if f.RoutingURL != "" {
		cfg.RoutingURL = f.RoutingURL
	}
	if f.Token != "" {
		cfg.Token = f.Token
	}
	for _, d := range []struct {
		key string
		ms  int
		dst *time.Duration
	}{
		{"locationIntervalMs", f.LocationIntervalMs, &cfg.LocationInterval},
		{"monitorIntervalMs", f.MonitorIntervalMs, &cfg.MonitorInterval},
		{"routeDebounceMs", f.RouteDebounceMs, &cfg.RouteDebounce},
		{"requestTimeoutMs", f.RequestTimeoutMs, &cfg.RequestTimeout},
	} {
		if d.ms < 0 {
			return fmt.Errorf("invalid %s: %d", d.key, d.ms)
		}
		if d.ms > 0 {
			*d.dst = time.Duration(d.ms) * time.Millisecond
		}
	}
	if f.MaxReconnectAttempts != 0 {
		cfg.MaxReconnectAttempts = f.MaxReconnectAttempts
	}
	if f.MetricsAddr != "" {
		cfg.MetricsAddr = f.MetricsAddr
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	return nil
}

// Load reads CONFIG_FILE (if set) then overlays environment variables.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		LocationInterval:     5 * time.Second,
		MonitorInterval:      5 * time.Second,
		RouteDebounce:        500 * time.Millisecond,
		RequestTimeout:       15 * time.Second,
		MaxReconnectAttempts: 5,
		LogLevel:             "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		if err := fc.overlay(cfg); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("HUB_URL"); v != "" {
		cfg.HubURL = v
	}
	if v := os.Getenv("ROUTING_URL"); v != "" {
		cfg.RoutingURL = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}

	var err error
	if cfg.LocationInterval, err = envDurationMs("LOCATION_INTERVAL_MS", cfg.LocationInterval); err != nil {
		return nil, err
	}
	if cfg.MonitorInterval, err = envDurationMs("MONITOR_INTERVAL_MS", cfg.MonitorInterval); err != nil {
		return nil, err
	}
	if cfg.RouteDebounce, err = envDurationMs("ROUTE_DEBOUNCE_MS", cfg.RouteDebounce); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = envDurationMs("REQUEST_TIMEOUT_MS", cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if v := os.Getenv("MAX_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_RECONNECT_ATTEMPTS: %q", v)
		}
		cfg.MaxReconnectAttempts = n
	}

	if !strings.HasPrefix(cfg.HubURL, "ws://") && !strings.HasPrefix(cfg.HubURL, "wss://") {
		return nil, fmt.Errorf("HUB_URL must be a ws:// or wss:// endpoint, got %q", cfg.HubURL)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func envDurationMs(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
