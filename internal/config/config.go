package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Feed   FeedConfig   `yaml:"feed"`
	Admin  AdminConfig  `yaml:"admin"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Listen string `yaml:"listen"`
	DBPath string `yaml:"db_path"`
}

// FeedConfig holds inventory feed settings
type FeedConfig struct {
	URL             string `yaml:"url"`
	DefaultLimit    int    `yaml:"default_limit"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// AdminConfig holds admin API settings
type AdminConfig struct {
	Token string `yaml:"token"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: "0.0.0.0:8080",
			DBPath: "/var/lib/lotsync/lotsync.db",
		},
		Feed: FeedConfig{
			DefaultLimit:    50,
			CacheTTLSeconds: 300,
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"lotsync.yaml",
		"/etc/lotsync/lotsync.yaml",
	}

	// Add user config path
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "lotsync", "lotsync.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Validate checks settings that have no usable zero value
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.DefaultLimit < 1 || c.Feed.DefaultLimit > 100 {
		return fmt.Errorf("feed.default_limit must be between 1 and 100, got %d", c.Feed.DefaultLimit)
	}
	return nil
}
