package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

const (
	MinPollInterval  = 1
	MaxPollInterval  = 60
	MinTimeout       = 1
	MaxTimeout       = 86400
	MinBatchWorkers  = 1
	MaxBatchWorkers  = 64
	MaxUploadLimitMB = 1024

	// APIKeyEnv overrides api_key when set.
	APIKeyEnv = "MONSTER_API_KEY"
)

// Config represents the main application configuration
type Config struct {
	APIKey          string       `toml:"api_key"`
	BaseURL         string       `toml:"base_url"`
	Loglevel        string       `toml:"loglevel"`
	PollInterval    int          `toml:"poll_interval"`
	Timeout         int          `toml:"timeout"`
	MaxUploadSizeMB int          `toml:"max_upload_size_mb"`
	ValidateParams  bool         `toml:"validate_params"`
	BatchWorkers    int          `toml:"batch_workers"`
	Upload          UploadConfig `toml:"upload"`
	Server          ServerConfig `toml:"server"`
}

// UploadConfig holds the presigned model-input upload endpoints
type UploadConfig struct {
	PresignURL string `toml:"presign_url"`
	FileURLURL string `toml:"file_url_url"`
	Bucket     string `toml:"bucket"`
}

// ServerConfig holds the local gateway configuration
type ServerConfig struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://api.monsterapi.ai/v1",
		Loglevel:        "info",
		PollInterval:    1,
		Timeout:         60,
		MaxUploadSizeMB: 8,
		ValidateParams:  true,
		BatchWorkers:    4,
		Server: ServerConfig{
			BindAddress: "127.0.0.1",
			Port:        9292,
		},
	}
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "monsterapi")

	return filepath.Join(configDir, "config.toml"), nil
}

// Load loads configuration from a TOML file. A missing file is not an error
// when the API key is provided through the environment.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err) && os.Getenv(APIKeyEnv) != "":
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.APIKey = key
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (or set %s)", APIKeyEnv)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("base_url is invalid: %v", err)
	}
	if _, err := logrus.ParseLevel(c.Loglevel); err != nil {
		return fmt.Errorf("loglevel must be one of: panic, fatal, error, warn, info, debug, trace")
	}

	if c.PollInterval < MinPollInterval || c.PollInterval > MaxPollInterval {
		return fmt.Errorf("poll_interval must be between %d and %d seconds", MinPollInterval, MaxPollInterval)
	}
	if c.Timeout < MinTimeout || c.Timeout > MaxTimeout {
		return fmt.Errorf("timeout must be between %d and %d seconds", MinTimeout, MaxTimeout)
	}
	if c.MaxUploadSizeMB < 0 || c.MaxUploadSizeMB > MaxUploadLimitMB {
		return fmt.Errorf("max_upload_size_mb must be between 0 and %d", MaxUploadLimitMB)
	}
	if c.BatchWorkers < MinBatchWorkers || c.BatchWorkers > MaxBatchWorkers {
		return fmt.Errorf("batch_workers must be between %d and %d", MinBatchWorkers, MaxBatchWorkers)
	}

	for name, raw := range map[string]string{
		"upload.presign_url":  c.Upload.PresignURL,
		"upload.file_url_url": c.Upload.FileURLURL,
	} {
		if raw == "" {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("%s is invalid: %v", name, err)
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if (c.Server.Username == "") != (c.Server.Password == "") {
		return fmt.Errorf("server.username and server.password must be set together")
	}

	return nil
}

// PollEvery returns the poll interval as a duration.
func (c *Config) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// WaitTimeout returns the wait timeout as a duration.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// MaxUploadSize returns the upload ceiling in bytes; 0 disables the check.
func (c *Config) MaxUploadSize() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}
