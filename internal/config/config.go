package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/calder/lectio/internal/log"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Client  ClientConfig  `mapstructure:"client"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Tracker TrackerConfig `mapstructure:"tracker"`
	Logging log.Config    `mapstructure:"logging"`
}

// ServerConfig holds the remote API configuration
type ServerConfig struct {
	URL      string `mapstructure:"url"`       // API base URL
	DeviceID string `mapstructure:"device_id"` // Generated once, identifies this install
}

// ClientConfig tunes the authenticated HTTP client
type ClientConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts"`
	ProactiveRefresh bool          `mapstructure:"proactive_refresh"`
	RefreshBuffer    time.Duration `mapstructure:"refresh_buffer"` // Refresh when token expires within this window
	RefreshWindow    time.Duration `mapstructure:"refresh_window"` // Minimum gap between refresh attempts
}

// SyncConfig tunes the progress sync engine
type SyncConfig struct {
	Interval  time.Duration `mapstructure:"interval"`   // Periodic full-sync cadence
	PageLimit int           `mapstructure:"page_limit"` // Download page size
}

// CacheConfig bounds the in-memory chapter cache
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
	MaxCostMB  int `mapstructure:"max_cost_mb"`
}

// TrackerConfig tunes the reading time tracker
type TrackerConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	SessionCap    time.Duration `mapstructure:"session_cap"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "",
		},
		Client: ClientConfig{
			Timeout:          30 * time.Second,
			MaxRetryAttempts: 3,
			ProactiveRefresh: true,
			RefreshBuffer:    5 * time.Minute,
			RefreshWindow:    10 * time.Second,
		},
		Sync: SyncConfig{
			Interval:  5 * time.Minute,
			PageLimit: 1000,
		},
		Cache: CacheConfig{
			MaxEntries: 10,
			MaxCostMB:  50,
		},
		Tracker: TrackerConfig{
			FlushInterval: 30 * time.Second,
			SessionCap:    2 * time.Hour,
		},
		Logging: log.Config{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "lectio", "lectio.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "lectio", "lectio.log")
	}
}

// DefaultConfigPath returns the default config directory for the current OS
func DefaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "lectio")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "lectio")
	}
}

// DefaultDataPath returns the default data directory for the current OS
func DefaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "lectio")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "lectio")
	}
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(DefaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("LECTIO")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if env := os.Getenv("LECTIO_SERVER_URL"); env != "" {
		cfg.Server.URL = env
	}

	// Assign a device identifier on first run
	if cfg.Server.DeviceID == "" {
		cfg.Server.DeviceID = uuid.NewString()
	}

	return cfg, nil
}

// Save saves the current configuration to file
func Save(cfg *Config) error {
	configPath := DefaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set fields individually to ensure correct key names (snake_case)
	viper.Set("server.url", cfg.Server.URL)
	viper.Set("server.device_id", cfg.Server.DeviceID)

	viper.Set("client.timeout", cfg.Client.Timeout)
	viper.Set("client.max_retry_attempts", cfg.Client.MaxRetryAttempts)
	viper.Set("client.proactive_refresh", cfg.Client.ProactiveRefresh)
	viper.Set("client.refresh_buffer", cfg.Client.RefreshBuffer)
	viper.Set("client.refresh_window", cfg.Client.RefreshWindow)

	viper.Set("sync.interval", cfg.Sync.Interval)
	viper.Set("sync.page_limit", cfg.Sync.PageLimit)

	viper.Set("cache.max_entries", cfg.Cache.MaxEntries)
	viper.Set("cache.max_cost_mb", cfg.Cache.MaxCostMB)

	viper.Set("tracker.flush_interval", cfg.Tracker.FlushInterval)
	viper.Set("tracker.session_cap", cfg.Tracker.SessionCap)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if the server URL is set
func (c *Config) IsConfigured() bool {
	return c.Server.URL != ""
}
