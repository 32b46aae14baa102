// Package config holds the client configuration: the server address, local
// store and log locations, and the poll cadence override.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config holds all configuration for the scanwork client.
type Config struct {
	// ServerAddress is the warehouse server base URL. Shorthand like
	// "192.168.1.44:8000" is accepted and normalized to http.
	ServerAddress string `json:"server_address"`

	// StorePath is the SQLite settings/journal database. Empty uses the
	// default under the config directory.
	StorePath string `json:"store_path"`

	// LogFile receives the request/response dumps. Empty logs to stderr.
	LogFile string `json:"log_file"`

	// PollInterval overrides the background refresh cadence, e.g. "5s".
	PollInterval string `json:"poll_interval"`

	// LogRequests enables transport dumps for user-initiated calls.
	LogRequests bool `json:"log_requests"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerAddress: "",
		StorePath:     "",
		LogFile:       "",
		PollInterval:  "5s",
		LogRequests:   true,
	}
}

// LoadConfig loads configuration from file, then applies SCANWORK_*
// environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		}
	}

	if v := os.Getenv("SCANWORK_SERVER"); v != "" {
		cfg.ServerAddress = v
	}
	if v := os.Getenv("SCANWORK_STORE"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("SCANWORK_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("SCANWORK_POLL_INTERVAL"); v != "" {
		cfg.PollInterval = v
	}

	return cfg, nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "scanwork", "config.json")
}

// DefaultStorePath returns the default SQLite database path.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "scanwork", "scanwork.db")
}

// SaveConfig saves the configuration to a file.
func (c *Config) SaveConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetPollInterval returns the parsed poll cadence.
func (c *Config) GetPollInterval() time.Duration {
	if c.PollInterval != "" {
		if d, err := time.ParseDuration(c.PollInterval); err == nil && d > 0 {
			return d
		}
	}
	return 5 * time.Second
}

var hostPortShorthand = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*(:\d{1,5})?$`)

// NormalizeServerAddress turns the operator-entered address into a usable base
// URL. Bare host or host:port shorthand gets an http scheme; trailing slashes
// are dropped.
func NormalizeServerAddress(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", fmt.Errorf("empty server address")
	}
	addr = strings.TrimRight(addr, "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		if strings.TrimRight(strings.TrimPrefix(strings.TrimPrefix(addr, "https://"), "http://"), "/") == "" {
			return "", fmt.Errorf("invalid server address %q", raw)
		}
		return addr, nil
	}
	if !hostPortShorthand.MatchString(addr) {
		return "", fmt.Errorf("invalid server address %q", raw)
	}
	return "http://" + addr, nil
}
