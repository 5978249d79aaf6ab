package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "stratizen"
	// EnvPrefix prefixes every environment override, e.g. STRATIZEN_LOG_LEVEL.
	EnvPrefix = "STRATIZEN"
	// DefaultDedupWindowSeconds is how long a send token suppresses duplicates.
	DefaultDedupWindowSeconds = 300
	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// UserConfig contains persistent local-user settings.
type UserConfig struct {
	UserID             string `json:"user_id" mapstructure:"user_id"`
	DisplayName        string `json:"display_name" mapstructure:"display_name"`
	MasterKeyPath      string `json:"master_key_path" mapstructure:"master_key_path"`
	DatabaseDir        string `json:"database_dir" mapstructure:"database_dir"`
	DedupWindowSeconds int    `json:"dedup_window_seconds" mapstructure:"dedup_window_seconds"`
	TrackUnread        bool   `json:"track_unread" mapstructure:"track_unread"`
	LogLevel           string `json:"log_level" mapstructure:"log_level"`
	LogPretty          bool   `json:"log_pretty" mapstructure:"log_pretty"`
}

var configKeys = []string{
	"user_id",
	"display_name",
	"master_key_path",
	"database_dir",
	"dedup_window_seconds",
	"track_unread",
	"log_level",
	"log_pretty",
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If STRATIZEN_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(EnvPrefix + "_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "keys")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Load reads config.json from disk and applies STRATIZEN_* environment overrides.
func Load(path string) (*UserConfig, error) {
	return load(path, true)
}

// load reads config.json; withEnv layers the STRATIZEN_* overrides on top of the file.
func load(path string, withEnv bool) (*UserConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		for _, key := range configKeys {
			if err := v.BindEnv(key); err != nil {
				return nil, fmt.Errorf("bind env for %q: %w", key, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg UserConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *UserConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
func LoadOrCreate() (*UserConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	stored, err := load(cfgPath, false)
	switch {
	case err == nil:
		if normalizeDefaults(stored, dataDir) {
			if err := Save(cfgPath, stored); err != nil {
				return nil, "", err
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(cfgPath, defaultConfig(dataDir)); err != nil {
			return nil, "", err
		}
	default:
		return nil, "", err
	}

	// Overrides apply only to the returned config, never to the file.
	cfg, err := Load(cfgPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

func defaultConfig(dataDir string) *UserConfig {
	cfg := &UserConfig{}
	normalizeDefaults(cfg, dataDir)
	return cfg
}

func normalizeDefaults(cfg *UserConfig, dataDir string) bool {
	updated := false

	if cfg.UserID == "" {
		cfg.UserID = uuid.NewString()
		updated = true
	}

	if cfg.DisplayName == "" {
		name := "Stratizen User"
		if host, err := os.Hostname(); err == nil && host != "" {
			name = host
		}
		cfg.DisplayName = name
		updated = true
	}

	if cfg.MasterKeyPath == "" {
		cfg.MasterKeyPath = filepath.Join(dataDir, "keys", "message_master.pem")
		updated = true
	}

	if cfg.DatabaseDir == "" {
		cfg.DatabaseDir = dataDir
		updated = true
	}

	if cfg.DedupWindowSeconds <= 0 {
		cfg.DedupWindowSeconds = DefaultDedupWindowSeconds
		updated = true
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
		updated = true
	}

	return updated
}
