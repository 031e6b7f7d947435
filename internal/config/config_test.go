package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8585 || cfg.Host != "0.0.0.0" || cfg.Backlog != 511 || cfg.Workers != 1 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults were not written: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			original := Default()
			original.RootPath = "/tmp/skyd-data"
			original.Port = 9000
			original.Workers = 4
			original.ReadTimeout = "30s"
			original.Admin.Enabled = true
			original.Admin.Token = "tok-round-trip"
			original.Telemetry.Endpoint = "http://localhost:4318"

			if err := Save(path, original); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if loaded.RootPath != original.RootPath {
				t.Errorf("RootPath mismatch: %v != %v", loaded.RootPath, original.RootPath)
			}
			if loaded.Port != original.Port || loaded.Workers != original.Workers {
				t.Errorf("Port/Workers mismatch: %d/%d", loaded.Port, loaded.Workers)
			}
			if loaded.Admin.Token != original.Admin.Token || !loaded.Admin.Enabled {
				t.Errorf("Admin mismatch: %+v", loaded.Admin)
			}
			if loaded.Telemetry.Endpoint != original.Telemetry.Endpoint {
				t.Errorf("Telemetry mismatch: %+v", loaded.Telemetry)
			}
			d, err := loaded.ReadTimeoutDuration()
			if err != nil || d != 30*time.Second {
				t.Errorf("expected 30s read timeout, got %v (%v)", d, err)
			}
		})
	}
}

func TestSave_JSONWhenExtensionIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())

	t.Setenv("SKYD_ROOT_PATH", "/srv/skyd")
	t.Setenv("SKYD_PORT", "7000")
	t.Setenv("SKYD_ADMIN_ENABLED", "true")
	t.Setenv("SKYD_TELEMETRY_ENDPOINT", "http://collector:4318")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RootPath != "/srv/skyd" || cfg.Port != 7000 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if !cfg.Admin.Enabled {
		t.Error("expected admin to be enabled from env")
	}
	if cfg.Telemetry.Endpoint != "http://collector:4318" {
		t.Errorf("expected telemetry endpoint from env, got %q", cfg.Telemetry.Endpoint)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())
	t.Setenv("SKYD_PORT", "not-a-number")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid SKYD_PORT")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing root", func(c *Config) { c.RootPath = "" }},
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"negative backlog", func(c *Config) { c.Backlog = -1 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"zero body size", func(c *Config) { c.MaxBodySize = 0 }},
		{"bad timeout", func(c *Config) { c.ReadTimeout = "soon" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"admin without listen", func(c *Config) { c.Admin.Enabled = true; c.Admin.Listen = "" }},
		{"bad schedule", func(c *Config) { c.Stats.Schedule = "every minute" }},
		{"bad sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestResolvedPidFile(t *testing.T) {
	cfg := Default()
	cfg.RootPath = "/srv/skyd"
	if got := cfg.ResolvedPidFile(); got != "/srv/skyd/skyd.pid" {
		t.Errorf("unexpected pid file %s", got)
	}
	cfg.PidFile = "/run/skyd.pid"
	if got := cfg.ResolvedPidFile(); got != "/run/skyd.pid" {
		t.Errorf("unexpected pid file %s", got)
	}
}

func TestToMap(t *testing.T) {
	cfg := Default()
	cfg.RootPath = "/tmp/test"
	cfg.LogLevel = "debug"

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}
	if m["root_path"] != "/tmp/test" {
		t.Errorf("expected root_path=/tmp/test, got %v", m["root_path"])
	}
	admin, ok := m["admin"].(map[string]any)
	if !ok {
		t.Fatalf("expected admin to be map, got %T", m["admin"])
	}
	if admin["listen"] != "127.0.0.1:8586" {
		t.Errorf("expected admin.listen default, got %v", admin["listen"])
	}
	// JSON numbers are float64
	if m["port"] != float64(8585) {
		t.Errorf("expected port=8585, got %v", m["port"])
	}
}

func TestListValues(t *testing.T) {
	cfg := Default()
	cfg.Admin.Token = "tok-secret-1234"

	flat, err := ListValues(cfg, false)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if flat["admin.token"] != "tok-secret-1234" {
		t.Errorf("expected unmasked admin.token, got %v", flat["admin.token"])
	}

	flat, err = ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if flat["admin.token"] != "***1234" {
		t.Errorf("expected masked admin.token=***1234, got %v", flat["admin.token"])
	}
	if flat["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", flat["log_level"])
	}
}

func TestGetValue(t *testing.T) {
	path := tempConfigPath(t)
	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.Port = 9000
	writeTestConfig(t, path, cfg)

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug, got %v", v)
	}

	v, err = GetValue(path, "admin.listen")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "127.0.0.1:8586" {
		t.Errorf("expected admin.listen default, got %v", v)
	}

	v, err = GetValue(path, "port")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if fmt.Sprint(v) != "9000" {
		t.Errorf("expected port=9000, got %v (%T)", v, v)
	}
}

func TestGetValue_UnknownKey(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())

	_, err := GetValue(path, "nonexistent.key")
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	expected := "unknown config key: nonexistent.key"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestGetValue_NonexistentFile(t *testing.T) {
	path := tempConfigPath(t)

	// Load creates the file with defaults.
	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue on new config failed: %v", err)
	}
	if v != "info" {
		t.Errorf("expected default log_level=info, got %v", v)
	}
}

func TestSetValue(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())

	if err := SetValue(path, "log_level", "debug"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := SetValue(path, "workers", "8"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := SetValue(path, "admin.enabled", "true"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Workers != 8 || !cfg.Admin.Enabled {
		t.Errorf("values not applied: %+v", cfg)
	}
	if cfg.Port != 8585 {
		t.Errorf("expected other values preserved, port=%d", cfg.Port)
	}
}

func TestSetValue_UnknownKey(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"prot", "admin.tokn", "custom.setting", "admin"} {
		err := SetValue(path, key, "1")
		if err == nil || !strings.Contains(err.Error(), "unknown config key") {
			t.Errorf("SetValue(%q): expected unknown key error, got %v", key, err)
		}
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("config file changed after rejected SetValue")
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.yaml")
	if err := SetValue(path, "log_level", "debug"); err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.yaml")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save should create parent directory, got: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}
}
