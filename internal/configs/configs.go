/*
Package configs is responsible for loading and parsing the gateway's configuration settings.

Values come from environment variables: the running environment, the HTTP port, CORS origins,
the backend REST and broker endpoints, session storage, and the presence and login policies.
*/
package configs

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// EnvDevelopment is the default environment name.
const EnvDevelopment = "development"

// AppConfig contains all configuration parameters required for the gateway to run.
type AppConfig struct {
	// General Server Settings
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"`

	// Security Settings
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Backend Settings
	BackendURL       string        `env:"BACKEND_URL" envDefault:"http://localhost:8081"`
	BackendLoginPath string        `env:"BACKEND_LOGIN_PATH" envDefault:"/api/auth/login"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// Broker Settings
	BrokerURL       string        `env:"BROKER_URL" envDefault:"ws://localhost:8081/ws"`
	BrokerHeartBeat time.Duration `env:"BROKER_HEARTBEAT" envDefault:"10s"`

	// Session Settings
	SessionFile string `env:"SESSION_FILE"`

	// Presence Settings
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`
	RedirectCountdown time.Duration `env:"REDIRECT_COUNTDOWN" envDefault:"10s"`
	SafeLandingPath   string        `env:"SAFE_LANDING_PATH" envDefault:"/"`

	// Login Rate Limit Settings
	LoginRate  float64 `env:"LOGIN_RATE" envDefault:"0.2"`
	LoginBurst int     `env:"LOGIN_BURST" envDefault:"5"`
}

// IsDevelopment reports whether the gateway runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// LoadConfig reads and validates the configuration from the process environment.
func LoadConfig() (*AppConfig, error) {
	return load(env.Options{})
}

// LoadFrom reads and validates the configuration from vars instead of the process environment.
func LoadFrom(vars map[string]string) (*AppConfig, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.Environment = strings.TrimSpace(cfg.Environment)
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.AllowedOrigins = origins

	if !cfg.IsDevelopment() && len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("ALLOWED_ORIGINS environment variable is required in %s environment", cfg.Environment)
	}

	if err := checkURL("BACKEND_URL", cfg.BackendURL, "http", "https"); err != nil {
		return nil, err
	}
	if err := checkURL("BROKER_URL", cfg.BrokerURL, "ws", "wss"); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(cfg.BackendLoginPath, "/") {
		return nil, fmt.Errorf("BACKEND_LOGIN_PATH %q must start with /", cfg.BackendLoginPath)
	}
	if !strings.HasPrefix(cfg.SafeLandingPath, "/") {
		return nil, fmt.Errorf("SAFE_LANDING_PATH %q must start with /", cfg.SafeLandingPath)
	}

	for name, d := range map[string]time.Duration{
		"HTTP_TIMEOUT":       cfg.HTTPTimeout,
		"RECONNECT_DELAY":    cfg.ReconnectDelay,
		"REDIRECT_COUNTDOWN": cfg.RedirectCountdown,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if cfg.BrokerHeartBeat < 0 {
		return nil, fmt.Errorf("BROKER_HEARTBEAT must not be negative, got %s", cfg.BrokerHeartBeat)
	}

	if cfg.LoginRate <= 0 || cfg.LoginBurst <= 0 {
		return nil, fmt.Errorf("LOGIN_RATE and LOGIN_BURST must be positive, got %v and %d", cfg.LoginRate, cfg.LoginBurst)
	}

	if cfg.SessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("SESSION_FILE is not set and no user config directory is available: %w", err)
		}
		cfg.SessionFile = filepath.Join(dir, "eduportal", "session.json")
	}

	return cfg, nil
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s environment variable: %w", name, err)
	}

	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q must be an absolute %s URL", name, raw, strings.Join(schemes, " or "))
}
