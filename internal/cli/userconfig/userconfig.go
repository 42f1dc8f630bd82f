package userconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const configFileName = "config.json"

// UserConfig represents the user's local preferences stored in <state dir>/config.json
type UserConfig struct {
	// LastEmail is the address last used to register, log in or resend verification
	LastEmail     string    `json:"last_email,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated_at,omitempty"`
}

// Dir is a state directory holding the user config file
type Dir string

// GetConfigPath returns the path to the user config file
func (d Dir) GetConfigPath() string {
	return filepath.Join(string(d), configFileName)
}

// Load reads the user configuration file
func (d Dir) Load() (*UserConfig, error) {
	data, err := os.ReadFile(d.GetConfigPath())
	if err != nil {
		// If config doesn't exist, return empty config
		if errors.Is(err, os.ErrNotExist) {
			return &UserConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read user config file: %w", err)
	}

	var cfg UserConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the user configuration to a file
func (d Dir) Save(cfg *UserConfig) error {
	if err := os.MkdirAll(string(d), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(d.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write user config file: %w", err)
	}

	return nil
}

// RememberEmail updates the last used email and saves the config
func (d Dir) RememberEmail(email string) error {
	cfg, err := d.Load()
	if err != nil {
		return err
	}

	cfg.LastEmail = email
	cfg.LastUpdatedAt = time.Now().UTC()
	return d.Save(cfg)
}

// LastEmail returns the last used email, or empty string if not set
func (d Dir) LastEmail() (string, error) {
	cfg, err := d.Load()
	if err != nil {
		return "", err
	}

	return cfg.LastEmail, nil
}
