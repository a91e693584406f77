package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// DefaultEncryptionKey is the publicly known development passphrase.
// Blobs encrypted with it are readable by anyone with this repository.
const DefaultEncryptionKey = "rollback-frontend-encryption-key01"

// Environments
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// ErrDefaultKeyInProduction is returned by Validate when production runs
// without an explicit encryption key.
var ErrDefaultKeyInProduction = errors.New("encryption.key must be set in production")

// Config holds all application configuration.
type Config struct {
	// Deployment environment: development, staging, production
	Environment string `json:"environment" mapstructure:"environment"`

	// Backend API
	API APIConfig `json:"api" mapstructure:"api"`

	// Private key encryption
	Encryption EncryptionConfig `json:"encryption" mapstructure:"encryption"`

	// Local profile storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Monitoring defaults
	Monitor MonitorConfig `json:"monitor" mapstructure:"monitor"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	WSURL      string        `json:"ws_url,omitempty" mapstructure:"ws_url"` // Derived from BaseURL when empty
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
	UserAgent  string        `json:"user_agent" mapstructure:"user_agent"`
}

// EncryptionConfig holds the pre-shared passphrase used for private keys.
type EncryptionConfig struct {
	Key string `json:"key,omitempty" mapstructure:"key"`

	// Set by the loader when Key fell back to DefaultEncryptionKey
	UsingDefaultKey bool `json:"-" mapstructure:"-"`
}

// StorageConfig for local file paths.
type StorageConfig struct {
	DataDir  string `json:"data_dir" mapstructure:"data_dir"`   // Base directory for all data
	StateDir string `json:"state_dir" mapstructure:"state_dir"` // Profile storage
	Backend  string `json:"backend" mapstructure:"backend"`     // json, sqlite
}

// MonitorConfig for rollback monitoring defaults.
type MonitorConfig struct {
	InactivityDays   int           `json:"inactivity_days" mapstructure:"inactivity_days"`
	MaxBackupWallets int           `json:"max_backup_wallets" mapstructure:"max_backup_wallets"`
	PingInterval     time.Duration `json:"ping_interval" mapstructure:"ping_interval"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stdout)
}

// DefaultConfig returns config with sensible defaults.
// Encryption.Key is left empty so the loader can tell an explicit key
// from the fallback.
func DefaultConfig() *Config {
	dataDir := ".rollbackctl"

	return &Config{
		Environment: EnvDevelopment,
		API: APIConfig{
			BaseURL:    "http://localhost:3001",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
			UserAgent:  "rollbackctl/1.0",
		},
		Storage: StorageConfig{
			DataDir:  dataDir,
			StateDir: filepath.Join(dataDir, "state"),
			Backend:  "json",
		},
		Monitor: MonitorConfig{
			InactivityDays:   90,
			MaxBackupWallets: 5,
			PingInterval:     30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		EnvDevelopment: true, EnvStaging: true, EnvProduction: true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL: %s", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must not be negative")
	}

	if c.Encryption.Key == "" {
		return errors.New("encryption.key is required")
	}

	if c.Environment == EnvProduction && (c.Encryption.UsingDefaultKey || c.Encryption.Key == DefaultEncryptionKey) {
		return ErrDefaultKeyInProduction
	}

	validBackends := map[string]bool{"json": true, "sqlite": true}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Monitor.InactivityDays <= 0 {
		return errors.New("monitor.inactivity_days must be positive")
	}

	if c.Monitor.MaxBackupWallets <= 0 {
		return errors.New("monitor.max_backup_wallets must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.Storage.StateDir,
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
