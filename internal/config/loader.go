package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "supportchat.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// Marshal renders cfg as YAML with secrets redacted.
func Marshal(cfg *Config) ([]byte, error) {
	c := *cfg
	if c.Support.SessionCookie != "" {
		c.Support.SessionCookie = "<redacted>"
	}
	if c.Support.CSRFToken != "" {
		c.Support.CSRFToken = "<redacted>"
	}
	return yaml.Marshal(&c)
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Support.BaseURL, "SUPPORTCHAT_BASE_URL")
	setString(&cfg.Support.Language, "SUPPORTCHAT_LANGUAGE")
	setString(&cfg.Support.SessionCookie, "SUPPORTCHAT_SESSION")
	setString(&cfg.Support.CSRFToken, "SUPPORTCHAT_CSRF_TOKEN")
	setString(&cfg.Support.CSRFCookie, "SUPPORTCHAT_CSRF_COOKIE")
	setString(&cfg.Support.LoginURL, "SUPPORTCHAT_LOGIN_URL")
	setDuration(&cfg.Support.Timeout, "SUPPORTCHAT_TIMEOUT")

	setDuration(&cfg.Poll.Interval, "SUPPORTCHAT_POLL_INTERVAL")
	setBool(&cfg.Poll.Incremental, "SUPPORTCHAT_POLL_INCREMENTAL")

	setBool(&cfg.Breaker.Enabled, "SUPPORTCHAT_BREAKER_ENABLED")
	setInt(&cfg.Breaker.MaxFailures, "SUPPORTCHAT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SUPPORTCHAT_BREAKER_TIMEOUT")

	setString(&cfg.Logging.Level, "SUPPORTCHAT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SUPPORTCHAT_LOG_SERVICE")
	setString(&cfg.Logging.Format, "SUPPORTCHAT_LOG_FORMAT")
	setString(&cfg.Logging.File, "SUPPORTCHAT_LOG_FILE")

	setInt64(&cfg.Cache.MaxSizeMB, "SUPPORTCHAT_CACHE_SIZE_MB")

	setString(&cfg.Mirror.Addr, "SUPPORTCHAT_MIRROR_ADDR")

	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "SUPPORTCHAT_OTLP_INSECURE")
	setDuration(&cfg.Telemetry.ExportInterval, "SUPPORTCHAT_OTLP_INTERVAL")

	setBool(&cfg.UI.Color, "SUPPORTCHAT_COLOR")
	setBool(&cfg.UI.Sound, "SUPPORTCHAT_SOUND")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Support.BaseURL == "" {
		return errors.New("support.base_url is required")
	}
	u, err := url.Parse(cfg.Support.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("support.base_url must be an absolute http(s) URL, got %q", cfg.Support.BaseURL)
	}
	cfg.Support.BaseURL = strings.TrimRight(cfg.Support.BaseURL, "/")
	if cfg.Support.CSRFCookie == "" {
		return errors.New("support.csrf_cookie is required")
	}
	if cfg.Support.Timeout <= 0 {
		return errors.New("support.timeout must be > 0")
	}
	if cfg.Poll.Interval < 100*time.Millisecond {
		return errors.New("poll.interval must be >= 100ms")
	}
	if cfg.Breaker.Enabled && cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	if cfg.Cache.MaxSizeMB < 0 {
		return errors.New("cache.max_size_mb must be >= 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
