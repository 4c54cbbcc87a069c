// Package config defines client configuration and its loading hooks.
package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Default values.
const (
	defaultLogLevel         = "info"
	defaultAPIURL           = "http://localhost:8000"
	defaultAuthURL          = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenURL         = "https://securetoken.googleapis.com/v1/token"
	defaultRequestTimeoutMS = 30_000
	defaultVerifyDelayMS    = 2_000
	defaultDownloadDir      = "."
	defaultAddr             = "127.0.0.1:9090"
	defaultTrendWindow      = 8
	defaultGaugeRadius      = 80.0
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// APIURL is the scoring service base URL.
	APIURL string `koanf:"api_url"`

	// AuthURL is the identity toolkit base URL; TokenURL refreshes tokens.
	AuthURL  string `koanf:"auth_url"`
	TokenURL string `koanf:"token_url"`

	// AuthAPIKey is the public web API key of the identity project.
	AuthAPIKey string `koanf:"auth_api_key"`

	// Email and Password are optional stored credentials for non-interactive use.
	Email    string `koanf:"email"`
	Password string `koanf:"password"`

	// RequestTimeoutMS bounds each remote call.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// VerifyDelayMS is the pause between a finished upload and the redirect.
	VerifyDelayMS int `koanf:"verify_delay_ms"`

	// DownloadDir is where certificates are saved.
	DownloadDir string `koanf:"download_dir"`

	// Addr is the listen address of the local site, e.g. "127.0.0.1:9090".
	Addr string `koanf:"addr"`

	// TrendWindow caps how many snapshots the trend draws.
	TrendWindow int `koanf:"trend_window"`

	// GaugeRadius is the radius of the score gauge.
	GaugeRadius float64 `koanf:"gauge_radius"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         defaultLogLevel,
		APIURL:           defaultAPIURL,
		AuthURL:          defaultAuthURL,
		TokenURL:         defaultTokenURL,
		RequestTimeoutMS: defaultRequestTimeoutMS,
		VerifyDelayMS:    defaultVerifyDelayMS,
		DownloadDir:      defaultDownloadDir,
		Addr:             defaultAddr,
		TrendWindow:      defaultTrendWindow,
		GaugeRadius:      defaultGaugeRadius,
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// VerifyDelay returns VerifyDelayMS as a duration.
func (c *Config) VerifyDelay() time.Duration {
	return time.Duration(c.VerifyDelayMS) * time.Millisecond
}

// Validate checks the configuration and wraps every problem in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	for name, raw := range map[string]string{"api_url": c.APIURL, "auth_url": c.AuthURL, "token_url": c.TokenURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s must be an absolute URL, got %q", ErrInvalidConfig, name, raw)
		}
	}
	if c.RequestTimeoutMS <= 0 {
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.VerifyDelayMS < 0 {
		return fmt.Errorf("%w: verify_delay_ms must not be negative", ErrInvalidConfig)
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("%w: download_dir must not be empty", ErrInvalidConfig)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.TrendWindow < 2 {
		return fmt.Errorf("%w: trend_window must be at least 2", ErrInvalidConfig)
	}
	if c.GaugeRadius <= 0 {
		return fmt.Errorf("%w: gauge_radius must be positive", ErrInvalidConfig)
	}
	return nil
}
