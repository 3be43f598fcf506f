// ABOUTME: Triplog configuration management with backend selection
// ABOUTME: Handles recorder settings, environment overrides, and storage backend factory

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/harper/triplog/internal/recorder"
	"github.com/harper/triplog/internal/storage"
	"github.com/joho/godotenv"
)

// Supported storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

const (
	sqliteFilename  = "trips.db"
	badgerDirname   = "badger"
	historyFilename = "history.jsonl"
)

// Config stores triplog configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default) or "badger".
	Backend string `json:"backend,omitempty"`

	// DataDir is the root directory for data storage.
	// SQLite puts trips.db here, Badger uses a badger/ subdirectory, and the
	// status history lives next to either as history.jsonl.
	// Supports ~ expansion for home directory. Defaults to ~/.local/share/triplog.
	DataDir string `json:"data_dir,omitempty"`

	// MinimumDistance is the distance filter in meters. Zero means the default.
	MinimumDistance float64 `json:"minimum_distance,omitempty"`

	// BestAccuracy asks the provider for its best accuracy while recording.
	BestAccuracy bool `json:"best_accuracy,omitempty"`

	// FailedCapacity bounds the list of fixes that could not be persisted.
	FailedCapacity int `json:"failed_capacity,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return BackendSQLite
	}
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetLogLevel parses the configured log level, defaulting to info.
func (c *Config) GetLogLevel() (log.Level, error) {
	if c.LogLevel == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Settings returns the recorder settings described by the config.
func (c *Config) Settings() recorder.Settings {
	s := recorder.DefaultSettings()
	if c.MinimumDistance > 0 {
		s.MinimumDistance = c.MinimumDistance
	}
	s.BestAccuracy = c.BestAccuracy
	return s
}

// RecorderOptions returns the controller options described by the config.
func (c *Config) RecorderOptions() recorder.Options {
	return recorder.Options{FailedCapacity: c.FailedCapacity}
}

// defaultDataDir returns the default XDG data directory for triplog.
func defaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "triplog")
}

// defaultFirstRunConfig returns the config written on first run.
// An existing Badger directory keeps Badger as the backend.
func defaultFirstRunConfig() *Config {
	nonEmpty, err := (&Config{}).HasData(BackendBadger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not check for existing badger data: %v\n", err)
	}
	if nonEmpty {
		return &Config{Backend: BackendBadger}
	}
	return &Config{Backend: BackendSQLite}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage creates a TripStore for the configured backend.
func (c *Config) OpenStorage(logger *log.Logger) (storage.TripStore, error) {
	return c.OpenBackend(c.GetBackend(), logger)
}

// OpenBackend creates a TripStore for the named backend inside the data directory.
func (c *Config) OpenBackend(backend string, logger *log.Logger) (storage.TripStore, error) {
	switch backend {
	case BackendSQLite:
		return storage.NewSQLiteStore(c.StoragePath(backend), logger)
	case BackendBadger:
		dir := c.StoragePath(backend)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		return storage.NewBadgerStore(dir, logger)
	default:
		return nil, fmt.Errorf("unknown backend: %q", backend)
	}
}

// StoragePath returns where the named backend keeps its data.
func (c *Config) StoragePath(backend string) string {
	if backend == BackendBadger {
		return filepath.Join(c.GetDataDir(), badgerDirname)
	}
	return filepath.Join(c.GetDataDir(), sqliteFilename)
}

// HasData reports whether the named backend already has data in the data directory.
func (c *Config) HasData(backend string) (bool, error) {
	path := c.StoragePath(backend)
	if backend == BackendBadger {
		return storage.IsDirNonEmpty(path)
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat %q: %w", path, err)
	}
}

// HistoryPath returns the status history file path.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.GetDataDir(), historyFilename)
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "triplog", "config.json")
}

// Load reads config from disk, then applies .env and TRIPLOG_* overrides.
// Overrides are not written back.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFile()
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile() (*Config, error) {
	path := GetConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultFirstRunConfig()
			if saveErr := cfg.Save(); saveErr != nil {
				fmt.Fprintf(os.Stderr, "warning: could not save default config: %v\n", saveErr)
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TRIPLOG_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("TRIPLOG_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TRIPLOG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TRIPLOG_MIN_DISTANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid TRIPLOG_MIN_DISTANCE %q", v)
		}
		c.MinimumDistance = f
	}
	if v := os.Getenv("TRIPLOG_BEST_ACCURACY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRIPLOG_BEST_ACCURACY %q", v)
		}
		c.BestAccuracy = b
	}
	if v := os.Getenv("TRIPLOG_FAILED_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid TRIPLOG_FAILED_CAPACITY %q", v)
		}
		c.FailedCapacity = n
	}
	return nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := GetConfigPath()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

// atomicWrite replaces path with data via a temp file in the same directory.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
