package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// APIPrefix is the versioned API prefix appended to the backend origin
	APIPrefix = "/api/v1"

	stateDirName = "fsauth"
)

// Config holds all configuration for the client
type Config struct {
	// BackendURL is the origin of the authentication service
	BackendURL string `env:"FSAUTH_BACKEND_URL" envDefault:"http://localhost:8080"`

	// FrontendURL is the origin federated login redirects back to
	FrontendURL string `env:"FSAUTH_FRONTEND_URL" envDefault:"http://localhost:5173"`

	// ProfilePath is the profile resource path, "/profile" or "/profile/me" depending on the backend
	ProfilePath string `env:"FSAUTH_PROFILE_PATH" envDefault:"/profile"`

	// OAuthRedirectPath is where the backend sends the browser after federated login
	OAuthRedirectPath string `env:"FSAUTH_OAUTH_REDIRECT_PATH" envDefault:"/oauth2/redirect"`

	// OAuthDebug surfaces redirect diagnostics when no token is received
	OAuthDebug bool `env:"FSAUTH_OAUTH_DEBUG" envDefault:"false"`

	Session SessionConfig

	// RequestTimeout bounds a whole HTTP exchange. Zero means no timeout.
	RequestTimeout time.Duration `env:"FSAUTH_REQUEST_TIMEOUT" envDefault:"0s"`

	Logging LoggingConfig
}

// SessionConfig holds credential persistence and gating configuration
type SessionConfig struct {
	// Backend selects the durable storage: keyring or sqlite
	Backend string `env:"FSAUTH_SESSION_BACKEND" envDefault:"keyring"`

	// StateDir holds the profile database and the cross-process change stamp
	StateDir string `env:"FSAUTH_STATE_DIR"`

	// GatePolicy selects how protected views are admitted: presence, expiry or backend
	GatePolicy string `env:"FSAUTH_GATE_POLICY" envDefault:"presence"`

	// ProtectedRoutes lists the views that require a session
	ProtectedRoutes []string `env:"FSAUTH_PROTECTED_ROUTES" envSeparator:"," envDefault:"/dashboard,/profile"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"warn"`
	Format string `env:"LOG_FORMAT" envDefault:"console"` // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() error {
	c.BackendURL = trimOrigin(c.BackendURL)
	c.FrontendURL = trimOrigin(c.FrontendURL)

	for name, raw := range map[string]string{"FSAUTH_BACKEND_URL": c.BackendURL, "FSAUTH_FRONTEND_URL": c.FrontendURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if !strings.HasPrefix(c.ProfilePath, "/") {
		c.ProfilePath = "/" + c.ProfilePath
	}
	if !strings.HasPrefix(c.OAuthRedirectPath, "/") {
		c.OAuthRedirectPath = "/" + c.OAuthRedirectPath
	}

	switch c.Session.Backend {
	case "keyring", "sqlite":
	default:
		return fmt.Errorf("FSAUTH_SESSION_BACKEND must be keyring or sqlite, got %q", c.Session.Backend)
	}

	switch c.Session.GatePolicy {
	case "presence", "expiry", "backend":
	default:
		return fmt.Errorf("FSAUTH_GATE_POLICY must be presence, expiry or backend, got %q", c.Session.GatePolicy)
	}

	if c.Session.StateDir == "" {
		dir, err := DefaultStateDir()
		if err != nil {
			return err
		}
		c.Session.StateDir = dir
	}

	return nil
}

// trimOrigin removes trailing slashes so paths can be appended verbatim
func trimOrigin(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// DefaultStateDir returns ~/.config/fsauth
func DefaultStateDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", stateDirName), nil
}

// APIBaseURL returns the base every RequestClient path is appended to
func (c *Config) APIBaseURL() string {
	return c.BackendURL + APIPrefix
}

// OAuthRedirectURL returns the absolute URL the backend redirects to after federated login
func (c *Config) OAuthRedirectURL() string {
	return c.FrontendURL + c.OAuthRedirectPath
}

// SessionScope identifies the credential slot; one credential per backend origin
func (c *Config) SessionScope() string {
	return c.BackendURL
}
