// Package util provides common utilities for hsafe.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Analysis service
	ServiceURL     string        `mapstructure:"service_url"`
	ServiceTimeout time.Duration `mapstructure:"service_timeout"`

	// Playback
	PlaybackDuration        time.Duration `mapstructure:"playback_duration"`
	PlaybackInterval        time.Duration `mapstructure:"playback_interval"`
	PlaybackSampleThreshold int           `mapstructure:"playback_sample_threshold"`
	PlaybackSampleRate      float64       `mapstructure:"playback_sample_rate"`
	PlaybackWindow          int           `mapstructure:"playback_window"`

	// Local API server
	APIPort int `mapstructure:"api_port"`

	// Traffic generator defaults
	DefaultProtocol string `mapstructure:"default_protocol"`
	DefaultPort     int    `mapstructure:"default_port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".hsafe")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "hsafe.log"),

		ServiceURL: "http://localhost:8000",

		PlaybackDuration:        5 * time.Second,
		PlaybackInterval:        30 * time.Millisecond,
		PlaybackSampleThreshold: 1000,
		PlaybackSampleRate:      75,
		PlaybackWindow:          100,

		APIPort: 8080,

		DefaultProtocol: "TCP",
		DefaultPort:     80,
	}
}

// LoadConfig loads configuration from file and environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(cfg.DataDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("hsafe")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("data_dir", cfg.DataDir)
	viper.SetDefault("log_level", cfg.LogLevel)
	viper.SetDefault("log_file", cfg.LogFile)
	viper.SetDefault("service_url", cfg.ServiceURL)
	viper.SetDefault("service_timeout", cfg.ServiceTimeout)
	viper.SetDefault("playback_duration", cfg.PlaybackDuration)
	viper.SetDefault("playback_interval", cfg.PlaybackInterval)
	viper.SetDefault("playback_sample_threshold", cfg.PlaybackSampleThreshold)
	viper.SetDefault("playback_sample_rate", cfg.PlaybackSampleRate)
	viper.SetDefault("playback_window", cfg.PlaybackWindow)
	viper.SetDefault("api_port", cfg.APIPort)
	viper.SetDefault("default_protocol", cfg.DefaultProtocol)
	viper.SetDefault("default_port", cfg.DefaultPort)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the playback scheduler cannot work with.
func (c *Config) Validate() error {
	if c.PlaybackInterval <= 0 {
		return fmt.Errorf("playback_interval must be positive, got %s", c.PlaybackInterval)
	}
	if c.PlaybackDuration < c.PlaybackInterval {
		return fmt.Errorf("playback_duration (%s) must be at least playback_interval (%s)",
			c.PlaybackDuration, c.PlaybackInterval)
	}
	if c.PlaybackSampleRate <= 0 {
		return fmt.Errorf("playback_sample_rate must be positive, got %v", c.PlaybackSampleRate)
	}
	if c.PlaybackWindow <= 0 {
		return fmt.Errorf("playback_window must be positive, got %d", c.PlaybackWindow)
	}
	if c.ServiceURL == "" {
		return fmt.Errorf("service_url must not be empty")
	}
	return nil
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
