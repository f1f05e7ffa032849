// Package config provides hierarchical configuration loading for supportchat.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the support chat client.
type Config struct {
	Support   Support   `yaml:"support"`
	Poll      Poll      `yaml:"poll"`
	Breaker   Breaker   `yaml:"breaker"`
	Logging   Logging   `yaml:"logging"`
	Cache     Cache     `yaml:"cache"`
	Mirror    Mirror    `yaml:"mirror"`
	Telemetry Telemetry `yaml:"telemetry"`
	UI        UI        `yaml:"ui"`
}

// Support holds the connection settings for the bookstore support API.
type Support struct {
	BaseURL       string        `yaml:"base_url"`
	Language      string        `yaml:"language"`       // sent as Accept-Language; "bn" selects localized agent names
	SessionCookie string        `yaml:"session_cookie"` // value of the Django sessionid cookie
	CSRFToken     string        `yaml:"csrf_token"`     // seeds the csrftoken cookie when set
	CSRFCookie    string        `yaml:"csrf_cookie"`    // cookie the CSRF header is read from
	LoginURL      string        `yaml:"login_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Poll holds the message polling configuration.
type Poll struct {
	Interval    time.Duration `yaml:"interval"`
	Incremental bool          `yaml:"incremental"` // ask the server only for ids after the last seen one
}

// Breaker holds circuit breaker configuration for API calls.
type Breaker struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Format  string `yaml:"format"` // "text" | "json"
	File    string `yaml:"file"`   // empty logs to stderr
}

// Cache holds the rendered fragment cache configuration.
type Cache struct {
	MaxSizeMB int64 `yaml:"max_size_mb"`
}

// Mirror holds the browser mirror (websocket) configuration.
type Mirror struct {
	Addr string `yaml:"addr"` // empty disables the mirror
}

// Telemetry holds OpenTelemetry export configuration.
type Telemetry struct {
	OTLPEndpoint   string        `yaml:"otlp_endpoint"` // empty disables export
	Insecure       bool          `yaml:"insecure"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

// UI holds terminal presentation settings.
type UI struct {
	Color bool `yaml:"color"`
	Sound bool `yaml:"sound"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Support: Support{
			BaseURL:    "http://localhost:8000",
			Language:   "en",
			CSRFCookie: "csrftoken",
			LoginURL:   "/accounts/login/",
			Timeout:    10 * time.Second,
		},
		Poll: Poll{
			Interval: 3 * time.Second,
		},
		Breaker: Breaker{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "supportchat",
			Format:  "text",
		},
		Cache: Cache{
			MaxSizeMB: 8,
		},
		Telemetry: Telemetry{
			ExportInterval: 30 * time.Second,
		},
		UI: UI{
			Color: true,
			Sound: true,
		},
	}
}
