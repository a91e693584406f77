package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ROLLBACK"

// Keys that can be set from a config file or environment.
var configKeys = []string{
	"environment",
	"api.base_url",
	"api.ws_url",
	"api.timeout",
	"api.max_retries",
	"api.retry_delay",
	"api.user_agent",
	"storage.data_dir",
	"storage.state_dir",
	"storage.backend",
	"monitor.inactivity_days",
	"monitor.max_backup_wallets",
	"monitor.ping_interval",
	"log.level",
	"log.format",
	"log.file",
}

// Environment names accepted for the passphrase, most specific first.
var encryptionKeyEnv = []string{
	EnvPrefix + "_ENCRYPTION_KEY",
	"ENCRYPTION_KEY",
	"NEXT_PUBLIC_ENCRYPTION_KEY",
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a config loader. An empty path searches the
// default locations.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    ".env",
	}
}

// WithEnvFile sets the dotenv file read before the environment.
// An empty path disables dotenv loading.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// ConfigPath returns the file the last Load read, if any.
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Load reads configuration from defaults, dotenv, file and environment.
func (l *Loader) Load() (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Dotenv never overrides variables already set
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", l.envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if err := v.BindEnv(append([]string{"encryption.key"}, encryptionKeyEnv...)...); err != nil {
		return nil, fmt.Errorf("bind env encryption.key: %w", err)
	}

	if err := l.readFile(v); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Keep the state directory under a relocated data directory
	if !v.IsSet("storage.state_dir") && v.IsSet("storage.data_dir") {
		cfg.Storage.StateDir = filepath.Join(cfg.Storage.DataDir, "state")
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Environment = strings.ToLower(cfg.Environment)

	if cfg.Encryption.Key == "" {
		cfg.Encryption.Key = DefaultEncryptionKey
		cfg.Encryption.UsingDefaultKey = true
	}

	// Validate final config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// readFile loads the explicit config file or the first default one found.
func (l *Loader) readFile(v *viper.Viper) error {
	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		return nil
	}

	for _, path := range l.defaultPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("load config file %s: %w", path, err)
		}
		l.configPath = path
		return nil
	}

	return nil
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{
		"rollbackctl.json",
		"rollbackctl.yaml",
		".rollbackctl.json",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "rollbackctl", "config.json"),
			filepath.Join(homeDir, ".config", "rollbackctl", "config.yaml"),
		)
	}

	return paths
}

// SaveExample writes an example config file. The encryption key is
// never written; set ROLLBACK_ENCRYPTION_KEY instead.
func SaveExample(path string) error {
	cfg := DefaultConfig()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
