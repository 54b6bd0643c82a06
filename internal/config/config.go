// Package config loads and validates app config from env and an
// optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the frontend server listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// BackendBaseURL is the chat backend base URL (e.g. http://localhost:8000). Required.
	BackendBaseURL string `mapstructure:"BACKEND_BASE_URL"`
	// HeartbeatInterval is the presence heartbeat period (e.g. "2m").
	HeartbeatInterval string `mapstructure:"HEARTBEAT_INTERVAL"`
	// AccessCookieTTL is the lifetime of the readable credential artifacts (e.g. "24h").
	AccessCookieTTL string `mapstructure:"ACCESS_COOKIE_TTL"`
	// RefreshCookieTTL is the lifetime of the transport-only refresh artifact (e.g. "168h").
	RefreshCookieTTL string `mapstructure:"REFRESH_COOKIE_TTL"`
	// CookieDomain scopes the credential cookies; empty means host-only.
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`
	// CookieSecure marks the credential cookies Secure. Enable behind TLS.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`
	// PublicPaths is the comma-separated public-only path list (login, register, diagnostics).
	PublicPaths string `mapstructure:"PUBLIC_PATHS"`
	// AdminPathPrefixes is the comma-separated admin-scoped prefix list.
	AdminPathPrefixes string `mapstructure:"ADMIN_PATH_PREFIXES"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from
// the environment via Viper. Missing .env is ignored (e.g. in CI). Env
// vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("BACKEND_BASE_URL", "")
	v.SetDefault("HEARTBEAT_INTERVAL", "2m")
	v.SetDefault("ACCESS_COOKIE_TTL", "24h")
	v.SetDefault("REFRESH_COOKIE_TTL", "168h") // 7d
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("PUBLIC_PATHS", "/login,/register,/status")
	v.SetDefault("ADMIN_PATH_PREFIXES", "/admin")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.BackendBaseURL == "" {
		return nil, errors.New("config: BACKEND_BASE_URL must be set")
	}
	cfg.BackendBaseURL = strings.TrimRight(cfg.BackendBaseURL, "/")

	return &cfg, nil
}

// Heartbeat parses HeartbeatInterval as a time.Duration. Returns 2m if
// unset or invalid.
func (c *Config) Heartbeat() time.Duration {
	d, err := time.ParseDuration(c.HeartbeatInterval)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// AccessTTL parses AccessCookieTTL. Returns 24h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.AccessCookieTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// RefreshTTL parses RefreshCookieTTL. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.RefreshCookieTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// PublicPathList returns the enumerated public-only paths.
func (c *Config) PublicPathList() []string {
	return splitList(c.PublicPaths)
}

// AdminPrefixList returns the enumerated admin-scoped path prefixes.
func (c *Config) AdminPrefixList() []string {
	return splitList(c.AdminPathPrefixes)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
