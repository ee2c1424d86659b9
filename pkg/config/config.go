// Package config loads the widget runtime configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation.
const (
	DefaultStoreBaseURL    = "https://lemonslemons.co/version-test/api/1.1"
	DefaultBind            = "127.0.0.1:4621"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultRequestsPerSec  = 8
	DefaultSearchLimit     = 10
	DefaultStoragePathName = "lemonaide.db"
)

// Config represents the complete runtime configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Search  SearchConfig  `yaml:"search"`
	Slugs   SlugConfig    `yaml:"slugs"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig addresses the remote object store.
type StoreConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
}

// SearchConfig addresses the hosted search index.
type SearchConfig struct {
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"api_key"`
	DefaultLimit int    `yaml:"default_limit"`
}

// SlugConfig controls type-slug resolution.
type SlugConfig struct {
	// Overrides pins a category to a collection slug, skipping probing.
	Overrides map[string]string `yaml:"overrides"`
	// Candidates is the ordered probe list per category. Defaults cover the
	// slug spellings the platform has shipped with so far.
	Candidates map[string][]string `yaml:"candidates"`
}

// BridgeConfig configures host-bridge transport.
type BridgeConfig struct {
	// NATSURL enables the NATS-backed bus when set; empty means in-memory.
	NATSURL string `yaml:"nats_url"`
	Name    string `yaml:"name"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// StorageConfig configures durable local storage.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			BaseURL:        DefaultStoreBaseURL,
			RequestTimeout: DefaultRequestTimeout,
			RequestsPerSec: DefaultRequestsPerSec,
		},
		Search: SearchConfig{
			DefaultLimit: DefaultSearchLimit,
		},
		Slugs: SlugConfig{
			Candidates: map[string][]string{
				"package": {"package", "packages", "service_package", "servicepackage"},
				"user":    {"user", "users", "account"},
				"service": {"service", "services"},
			},
		},
		Bridge: BridgeConfig{Name: "lemonaide"},
		Server: ServerConfig{Bind: DefaultBind},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Logging: LoggingConfig{
			Dir:   defaultLogDir(),
			Level: "info",
		},
	}
}

// Load reads config.yaml from ~/.lemonaide and the working directory, merges
// onto defaults, applies environment overrides, and validates.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userPath := filepath.Join(home, ".lemonaide", "config.yaml")
		if err := loadAndMerge(cfg, userPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	projectPath := filepath.Join(".", ".lemonaide", "config.yaml")
	if err := loadAndMerge(cfg, projectPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadFromPath reads config from an explicit path.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEMONAIDE_STORE_URL"); v != "" {
		cfg.Store.BaseURL = v
	}
	if v := os.Getenv("LEMONAIDE_STORE_TOKEN"); v != "" {
		cfg.Store.Token = v
	}
	if v := os.Getenv("LEMONAIDE_SEARCH_ENDPOINT"); v != "" {
		cfg.Search.Endpoint = v
	}
	if v := os.Getenv("LEMONAIDE_SEARCH_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("LEMONAIDE_NATS_URL"); v != "" {
		cfg.Bridge.NATSURL = v
	}
	if v := os.Getenv("LEMONAIDE_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("LEMONAIDE_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("LEMONAIDE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEMONAIDE_PACKAGE_SLUG"); v != "" {
		if cfg.Slugs.Overrides == nil {
			cfg.Slugs.Overrides = make(map[string]string)
		}
		cfg.Slugs.Overrides["package"] = v
	}
	if v := os.Getenv("LEMONAIDE_USER_SLUG"); v != "" {
		if cfg.Slugs.Overrides == nil {
			cfg.Slugs.Overrides = make(map[string]string)
		}
		cfg.Slugs.Overrides["user"] = v
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.BaseURL) == "" {
		return fmt.Errorf("store.base_url cannot be empty")
	}
	if !strings.HasPrefix(c.Store.BaseURL, "http://") && !strings.HasPrefix(c.Store.BaseURL, "https://") {
		return fmt.Errorf("store.base_url must be an http(s) URL, got %q", c.Store.BaseURL)
	}
	if c.Store.RequestTimeout <= 0 {
		return fmt.Errorf("store.request_timeout must be positive")
	}
	if c.Store.RequestsPerSec <= 0 {
		return fmt.Errorf("store.requests_per_sec must be positive")
	}
	if c.Server.Bind != "" {
		if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
			return fmt.Errorf("server.bind %q is not host:port: %w", c.Server.Bind, err)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug/info/warn/error", c.Logging.Level)
	}
	return nil
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultStoragePathName
	}
	return filepath.Join(home, ".lemonaide", DefaultStoragePathName)
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".lemonaide", "logs")
	}
	return filepath.Join(home, ".lemonaide", "logs")
}
