// ABOUTME: Tests for triplog config functionality
// ABOUTME: Verifies config load, save, env overrides, path resolution, defaults, and backend factory

package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/harper/triplog/internal/recorder"
	"github.com/harper/triplog/internal/storage"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()
	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}
	if !filepath.IsAbs(path) {
		t.Errorf("GetConfigPath returned non-absolute path: %s", path)
	}
}

func TestGetConfigPathWithXDGConfigHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	path := GetConfigPath()
	if !strings.HasPrefix(path, tmpDir) {
		t.Errorf("GetConfigPath should use XDG_CONFIG_HOME, got %s", path)
	}
	if !strings.HasSuffix(path, filepath.Join("triplog", "config.json")) {
		t.Errorf("GetConfigPath should end with triplog/config.json, got %s", path)
	}
}

func TestGetConfigPathWithoutXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	path := GetConfigPath()
	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}
	// Should fall back to ~/.config
	if !strings.Contains(path, ".config") {
		t.Errorf("GetConfigPath should use .config fallback, got %s", path)
	}
}

func TestLoadNonExistent(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed on non-existent config: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.Backend != "sqlite" {
		t.Errorf("expected default backend 'sqlite' for new user, got %q", cfg.Backend)
	}

	// Verify config file was auto-created
	configPath := GetConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("expected config file to be auto-created on first run")
	}
}

func TestLoadExistingBadgerUser(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", tmpDir)

	// Simulate a data dir already holding badger files
	badgerDir := filepath.Join(tmpDir, "triplog", "badger")
	if err := os.MkdirAll(badgerDir, 0750); err != nil {
		t.Fatalf("failed to create badger dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badgerDir, "MANIFEST"), []byte("fake"), 0600); err != nil {
		t.Fatalf("failed to create fake manifest: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != "badger" {
		t.Errorf("expected backend 'badger' for existing Badger user, got %q", cfg.Backend)
	}
}

func TestLoadAutoCreatedConfigIsValidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", tmpDir)

	_, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	configPath := GetConfigPath()
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read auto-created config: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("auto-created config is not valid JSON: %v", err)
	}
	if raw["backend"] != "sqlite" {
		t.Errorf("expected auto-created config backend 'sqlite', got %v", raw["backend"])
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "triplog")
	if err := os.MkdirAll(configDir, 0750); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte("invalid json {{{"), 0600); err != nil {
		t.Fatalf("failed to write invalid config: %v", err)
	}

	_, err := Load()
	if err == nil {
		t.Error("Load should fail on invalid JSON")
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg := &Config{}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded == nil {
		t.Error("loaded config is nil")
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg := &Config{}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	configDir := filepath.Join(tmpDir, "triplog")
	info, err := os.Stat(configDir)
	if err != nil {
		t.Errorf("Config directory was not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("Config path is not a directory")
	}
}

func TestDefaultBackend(t *testing.T) {
	cfg := &Config{}
	backend := cfg.GetBackend()
	if backend != "sqlite" {
		t.Errorf("expected default backend 'sqlite', got %q", backend)
	}
}

func TestExplicitBackend(t *testing.T) {
	cfg := &Config{Backend: "badger"}
	backend := cfg.GetBackend()
	if backend != "badger" {
		t.Errorf("expected backend 'badger', got %q", backend)
	}
}

func TestDefaultDataDir(t *testing.T) {
	cfg := &Config{}
	dataDir := cfg.GetDataDir()
	if dataDir == "" {
		t.Error("GetDataDir returned empty string")
	}
	if !filepath.IsAbs(dataDir) {
		t.Errorf("GetDataDir returned non-absolute path: %s", dataDir)
	}
	// Should end with "triplog" directory
	if filepath.Base(dataDir) != "triplog" {
		t.Errorf("GetDataDir should end with 'triplog', got %s", dataDir)
	}
}

func TestExplicitDataDir(t *testing.T) {
	cfg := &Config{DataDir: "/custom/data/path"}
	dataDir := cfg.GetDataDir()
	if dataDir != "/custom/data/path" {
		t.Errorf("expected '/custom/data/path', got %q", dataDir)
	}
}

func TestDataDirTildeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("cannot get home dir: %v", err)
	}

	cfg := &Config{DataDir: "~/my-trip-data"}
	dataDir := cfg.GetDataDir()
	expected := filepath.Join(home, "my-trip-data")
	if dataDir != expected {
		t.Errorf("expected %q, got %q", expected, dataDir)
	}
}

func TestDataDirTildeOnlyExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("cannot get home dir: %v", err)
	}

	cfg := &Config{DataDir: "~"}
	dataDir := cfg.GetDataDir()
	if dataDir != home {
		t.Errorf("expected %q, got %q", home, dataDir)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("cannot get home dir: %v", err)
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/foo", filepath.Join(home, "foo")},
		{"~", home},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		result := ExpandPath(tt.input)
		if result != tt.expected {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestSaveAndLoadWithBackendFields(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg := &Config{
		Backend:         "badger",
		DataDir:         "/custom/data",
		MinimumDistance: 12.5,
		BestAccuracy:    true,
		FailedCapacity:  50,
		LogLevel:        "debug",
	}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Backend != "badger" {
		t.Errorf("expected backend 'badger', got %q", loaded.Backend)
	}
	if loaded.DataDir != "/custom/data" {
		t.Errorf("expected data_dir '/custom/data', got %q", loaded.DataDir)
	}
	if loaded.MinimumDistance != 12.5 || !loaded.BestAccuracy {
		t.Errorf("expected recorder settings to round trip, got %+v", loaded)
	}
	if loaded.FailedCapacity != 50 || loaded.LogLevel != "debug" {
		t.Errorf("expected capacity and log level to round trip, got %+v", loaded)
	}
}

func TestSaveAndLoadPreservesJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg := &Config{
		Backend: "sqlite",
		DataDir: "~/my-data",
	}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path := GetConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw JSON: %v", err)
	}

	if raw["backend"] != "sqlite" {
		t.Errorf("expected JSON key 'backend' with value 'sqlite', got %v", raw["backend"])
	}
	if raw["data_dir"] != "~/my-data" {
		t.Errorf("expected JSON key 'data_dir' with value '~/my-data', got %v", raw["data_dir"])
	}
}

func TestOpenStorageSqliteBackend(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := &Config{
		Backend: "sqlite",
		DataDir: tmpDir,
	}

	store, err := cfg.OpenStorage(testLogger())
	if err != nil {
		t.Fatalf("OpenStorage failed for sqlite: %v", err)
	}
	defer store.Close()
}

func TestOpenStorageDefaultBackend(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := &Config{
		DataDir: tmpDir,
	}

	store, err := cfg.OpenStorage(testLogger())
	if err != nil {
		t.Fatalf("OpenStorage failed for default backend: %v", err)
	}
	defer store.Close()
}

func TestOpenStorageBadgerBackend(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{
		Backend: "badger",
		DataDir: tmpDir,
	}

	store, err := cfg.OpenStorage(testLogger())
	if err != nil {
		t.Fatalf("OpenStorage failed for badger backend: %v", err)
	}
	defer store.Close()

	nonEmpty, err := storage.IsDirNonEmpty(filepath.Join(tmpDir, "badger"))
	if err != nil {
		t.Fatalf("IsDirNonEmpty failed: %v", err)
	}
	if !nonEmpty {
		t.Error("expected badger files in data dir")
	}
}

func TestOpenStorageUnknownBackend(t *testing.T) {
	cfg := &Config{
		Backend: "redis",
		DataDir: "/tmp/triplog-test",
	}

	_, err := cfg.OpenStorage(testLogger())
	if err == nil {
		t.Fatal("expected error for unknown backend, got nil")
	}
	if !strings.Contains(err.Error(), "unknown backend") {
		t.Errorf("expected 'unknown backend' error, got: %v", err)
	}
}

func TestOpenStorageSqliteCreatesDBInDataDir(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := &Config{
		Backend: "sqlite",
		DataDir: tmpDir,
	}

	store, err := cfg.OpenStorage(testLogger())
	if err != nil {
		t.Fatalf("OpenStorage failed: %v", err)
	}
	defer store.Close()

	dbPath := filepath.Join(tmpDir, "trips.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("expected database file at %s", dbPath)
	}
}

func TestSaveToUnwritableDirectory(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path/that/does/not/exist/12345")

	cfg := &Config{}
	err := cfg.Save()

	if err == nil {
		t.Error("Expected error when saving to unwritable directory")
	}
}

func TestSettingsDefaults(t *testing.T) {
	cfg := &Config{}
	s := cfg.Settings()
	if s.MinimumDistance != recorder.DefaultMinimumDistance {
		t.Errorf("expected default distance %g, got %g", recorder.DefaultMinimumDistance, s.MinimumDistance)
	}
	if s.BestAccuracy {
		t.Error("expected best accuracy off by default")
	}
	if cfg.RecorderOptions().FailedCapacity != 0 {
		t.Error("expected zero capacity to defer to the recorder default")
	}
}

func TestSettingsExplicit(t *testing.T) {
	cfg := &Config{MinimumDistance: 20, BestAccuracy: true}
	s := cfg.Settings()
	if s.MinimumDistance != 20 || !s.BestAccuracy {
		t.Errorf("unexpected settings %+v", s)
	}
}

func TestHistoryPath(t *testing.T) {
	cfg := &Config{DataDir: "/custom/data"}
	if got := cfg.HistoryPath(); got != filepath.Join("/custom/data", "history.jsonl") {
		t.Errorf("unexpected history path %q", got)
	}
}

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    log.Level
		wantErr bool
	}{
		{"", log.InfoLevel, false},
		{"debug", log.DebugLevel, false},
		{"warn", log.WarnLevel, false},
		{"error", log.ErrorLevel, false},
		{"chatty", log.InfoLevel, true},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.input}
		got, err := cfg.GetLogLevel()
		if (err != nil) != tt.wantErr {
			t.Errorf("GetLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("GetLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", tmpDir)
	t.Setenv("TRIPLOG_BACKEND", "badger")
	t.Setenv("TRIPLOG_DATA_DIR", "/env/data")
	t.Setenv("TRIPLOG_MIN_DISTANCE", "7.5")
	t.Setenv("TRIPLOG_BEST_ACCURACY", "true")
	t.Setenv("TRIPLOG_FAILED_CAPACITY", "25")
	t.Setenv("TRIPLOG_LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != "badger" || cfg.DataDir != "/env/data" {
		t.Errorf("expected env backend and data dir, got %+v", cfg)
	}
	if cfg.MinimumDistance != 7.5 || !cfg.BestAccuracy || cfg.FailedCapacity != 25 || cfg.LogLevel != "warn" {
		t.Errorf("expected env overrides, got %+v", cfg)
	}

	// Overrides are not persisted
	data, err := os.ReadFile(GetConfigPath())
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	if strings.Contains(string(data), "/env/data") {
		t.Errorf("env override leaked into saved config: %s", data)
	}
}

func TestLoadInvalidEnvOverrides(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"TRIPLOG_MIN_DISTANCE", "far"},
		{"TRIPLOG_MIN_DISTANCE", "-1"},
		{"TRIPLOG_BEST_ACCURACY", "sometimes"},
		{"TRIPLOG_FAILED_CAPACITY", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv("XDG_CONFIG_HOME", tmpDir)
			t.Setenv("XDG_DATA_HOME", tmpDir)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("expected error naming %s, got %v", tt.key, err)
			}
		})
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg := &Config{Backend: "sqlite"}
	for i := 0; i < 3; i++ {
		if err := cfg.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(tmpDir, "triplog"))
	if err != nil {
		t.Fatalf("read config dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only config.json, got %v", names)
	}
}

func TestHasData(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{DataDir: tmpDir}

	for _, backend := range []string{"sqlite", "badger"} {
		has, err := cfg.HasData(backend)
		if err != nil {
			t.Fatalf("HasData(%s) failed: %v", backend, err)
		}
		if has {
			t.Errorf("expected no %s data in empty dir", backend)
		}
	}

	store, err := cfg.OpenBackend("sqlite", testLogger())
	if err != nil {
		t.Fatalf("OpenBackend failed: %v", err)
	}
	_ = store.Close()

	has, err := cfg.HasData("sqlite")
	if err != nil {
		t.Fatalf("HasData failed: %v", err)
	}
	if !has {
		t.Error("expected sqlite data after opening the backend")
	}
	if has, _ := cfg.HasData("badger"); has {
		t.Error("sqlite data should not count as badger data")
	}
}
