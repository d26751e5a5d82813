// Package config loads the application configuration from the environment.
//
// CONFIG STRATEGY:
// All runtime knobs come from environment variables, parsed into one typed
// struct with github.com/caarlos0/env. main.go loads a local .env file
// first (via godotenv) so development doesn't need exported shell vars;
// in production the process environment is the single source of truth.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment variable the server consumes.
//
// Required fields have no envDefault: env.Parse fails fast at startup when
// they're missing, which beats discovering a blank client secret on the
// first login attempt.
type Config struct {
	Port      int    `env:"PORT" envDefault:"8080"`
	DBPath    string `env:"DB_PATH" envDefault:"gitdoor.db"`
	StaticDir string `env:"STATIC_DIR" envDefault:"web/static"`

	// AppURL is the public base URL of the app, e.g. "http://localhost:8080"
	// or "https://gitdoor.example.com". It drives the OAuth callback URL
	// registered with GitHub and the Secure flag on cookies.
	AppURL string `env:"APP_URL" envDefault:"http://localhost:8080"`

	JWTSecret          string `env:"JWT_SECRET,required,notEmpty"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID,required,notEmpty"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET,required,notEmpty"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if _, err := url.ParseRequestURI(cfg.AppURL); err != nil {
		return nil, fmt.Errorf("config: APP_URL %q is not a valid URL: %w", cfg.AppURL, err)
	}

	return &cfg, nil
}

// CallbackURL is the absolute OAuth callback URL derived from AppURL. It
// must match the "Authorization callback URL" configured on the GitHub
// OAuth app byte for byte.
func (c *Config) CallbackURL() string {
	return strings.TrimSuffix(c.AppURL, "/") + "/api/auth/github/callback"
}

// SecureCookies reports whether auth cookies should carry the Secure flag.
// True exactly when the app is served over HTTPS.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.AppURL, "https://")
}
