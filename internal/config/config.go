package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"

	"github.com/user/skyd/internal/protocol"
	"github.com/user/skyd/internal/scheduler"
	"github.com/user/skyd/internal/telemetry"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SKYD_"

type Config struct {
	RootPath    string `yaml:"root_path" json:"root_path" env:"ROOT_PATH"`
	Host        string `yaml:"host" json:"host" env:"HOST"`
	Port        int    `yaml:"port" json:"port" env:"PORT"`
	Backlog     int    `yaml:"backlog" json:"backlog" env:"BACKLOG"`
	Workers     int    `yaml:"workers" json:"workers" env:"WORKERS"`
	MaxBodySize uint32 `yaml:"max_body_size" json:"max_body_size" env:"MAX_BODY_SIZE"`
	// ReadTimeout is a Go duration string; empty means no timeout.
	ReadTimeout string `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	LogLevel    string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`
	PidFile     string `yaml:"pid_file" json:"pid_file" env:"PID_FILE"`
	Admin       struct {
		Enabled bool   `yaml:"enabled" json:"enabled" env:"ENABLED"`
		Listen  string `yaml:"listen" json:"listen" env:"LISTEN"`
		Token   string `yaml:"token" json:"token" env:"TOKEN"`
	} `yaml:"admin" json:"admin" envPrefix:"ADMIN_"`
	Stats struct {
		// Schedule is a cron expression; empty disables the report.
		Schedule string `yaml:"schedule" json:"schedule" env:"SCHEDULE"`
	} `yaml:"stats" json:"stats" envPrefix:"STATS_"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry" envPrefix:"TELEMETRY_"`
}

// DefaultDir is the directory holding the default config file and data.
func DefaultDir() string {
	return filepath.Join(os.Getenv("HOME"), ".skyd")
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func Default() *Config {
	cfg := &Config{
		RootPath:    filepath.Join(DefaultDir(), "data"),
		Host:        "0.0.0.0",
		Port:        8585,
		Backlog:     511,
		Workers:     1,
		MaxBodySize: protocol.DefaultMaxBodySize,
		LogLevel:    "info",
	}
	cfg.Admin.Listen = "127.0.0.1:8586"
	cfg.Stats.Schedule = "@every 1m"
	return cfg
}

// Load reads the config file at path over the defaults, writing the defaults
// to path first if it does not exist, then applies SKYD_* environment
// variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// ReadTimeoutDuration parses ReadTimeout.
func (c *Config) ReadTimeoutDuration() (time.Duration, error) {
	if c.ReadTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return 0, fmt.Errorf("read_timeout: %w", err)
	}
	return d, nil
}

// ResolvedPidFile returns PidFile, defaulting to skyd.pid in the root path.
func (c *Config) ResolvedPidFile() string {
	if c.PidFile != "" {
		return c.PidFile
	}
	return filepath.Join(c.RootPath, "skyd.pid")
}

// Validate reports the first setting the server cannot run with.
func (c *Config) Validate() error {
	if c.RootPath == "" {
		return fmt.Errorf("root_path is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Backlog < 0 {
		return fmt.Errorf("backlog must not be negative, got %d", c.Backlog)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxBodySize == 0 {
		return fmt.Errorf("max_body_size must be positive")
	}
	if d, err := c.ReadTimeoutDuration(); err != nil {
		return err
	} else if d < 0 {
		return fmt.Errorf("read_timeout must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.Admin.Enabled && c.Admin.Listen == "" {
		return fmt.Errorf("admin.listen is required when the admin API is enabled")
	}
	if c.Stats.Schedule != "" {
		if err := scheduler.ValidateSchedule(c.Stats.Schedule); err != nil {
			return fmt.Errorf("stats.schedule: %w", err)
		}
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1, got %v", r)
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func marshal(path string, v any) ([]byte, error) {
	if isJSON(path) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return yaml.Marshal(v)
}

func unmarshal(path string, data []byte, v any) error {
	if isJSON(path) {
		return json.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := marshal(path, cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into a nested map keyed by the JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every setting of cfg under its dot-separated key,
// optionally masking secrets.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	m := make(map[string]any)
	if err := unmarshal(path, data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// GetValue returns the value stored in the config file under key, creating
// the file with defaults if it does not exist.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(raw)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under key in the existing config file at path. Only
// keys that exist in the default config are accepted.
// Values that parse as JSON (numbers, booleans) keep that type; anything else
// is stored as a string.
func SetValue(path, key, value string) error {
	known, err := ListValues(Default(), false)
	if err != nil {
		return err
	}
	if _, ok := known[key]; !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}

	raw, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	flat := Flatten(raw)
	flat[key] = parsed

	data, err := marshal(path, Unflatten(flat))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}
