// Package config loads the dctwin server configuration.
//
// Values come from a YAML file, then environment variables override them.
// Config file locations (priority order):
//  1. $DCTWIN_CONFIG
//  2. ./dctwin.yaml
//  3. ~/.config/dctwin/config.yaml
//  4. /etc/dctwin/config.yaml
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dctwin/internal/core/anomaly"
	"dctwin/internal/core/capacity"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "DCTWIN"

// Config is the root configuration structure
type Config struct {
	Version  int                    `yaml:"version"`
	Server   ServerConfig           `yaml:"server"`
	Database DatabaseConfig         `yaml:"database"`
	Logging  LoggingConfig          `yaml:"logging"`
	Redis    RedisConfig            `yaml:"redis"`
	Notifier NotifierConfig         `yaml:"notifier"`
	Anomaly  anomaly.SeverityPolicy `yaml:"anomaly"`
	Capacity capacity.Options       `yaml:"capacity"`
	Watch    WatchConfig            `yaml:"watch"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"` // zero keeps SSE streams open
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Dialect  string `yaml:"dialect"` // sqlite or postgres
	DSN      string `yaml:"dsn"`     // file path for sqlite
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// LoggingConfig selects the zap level and encoder
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// RedisConfig configures the event stream mirror
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// NotifierConfig configures the anomaly webhook. An empty URL disables it.
type NotifierConfig struct {
	URL         string   `yaml:"url"`
	Token       string   `yaml:"token"`
	MinSeverity string   `yaml:"min_severity"`
	Timeout     Duration `yaml:"timeout"`
	RetryCount  int      `yaml:"retry_count"`
}

// WatchConfig names a scan file whose changes trigger reconciliation
type WatchConfig struct {
	ScanFile string   `yaml:"scan_file"`
	SiteID   string   `yaml:"site_id"`
	Debounce Duration `yaml:"debounce"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied in both cases.
func Load() (*Config, string, error) {
	return Resolve("")
}

// Resolve loads path when given, otherwise searches the standard
// locations. Environment overrides are applied last.
func Resolve(path string) (*Config, string, error) {
	if path == "" {
		path = FindConfigPath()
	}

	cfg := DefaultConfig()
	if path != "" {
		loaded, _, err := LoadFromPath(path)
		if err != nil {
			return nil, path, err
		}
		cfg = loaded
	}

	if err := cfg.LoadFromEnv(EnvPrefix); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(15 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.Database.Dialect == "" {
		c.Database.Dialect = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Dialect == "sqlite" {
		c.Database.DSN = "./dctwin.db"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "dctwin:events"
	}
	if c.Redis.MaxLen == 0 {
		c.Redis.MaxLen = 10000
	}

	if c.Notifier.MinSeverity == "" {
		c.Notifier.MinSeverity = "HIGH"
	}
	if c.Notifier.Timeout == 0 {
		c.Notifier.Timeout = Duration(10 * time.Second)
	}
	if c.Notifier.RetryCount == 0 {
		c.Notifier.RetryCount = 3
	}

	if c.Anomaly == (anomaly.SeverityPolicy{}) {
		c.Anomaly = anomaly.DefaultPolicy()
	}
	if c.Capacity == (capacity.Options{}) {
		c.Capacity = capacity.DefaultOptions()
	}

	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = Duration(500 * time.Millisecond)
	}
}

// LoadFromEnv overrides settings from environment variables named
// PREFIX_SECTION_KEY, for example DCTWIN_DB_DSN or DCTWIN_REDIS_ADDR.
func (c *Config) LoadFromEnv(prefix string) error {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	if dialect := os.Getenv(prefix + "_DB_DIALECT"); dialect != "" {
		c.Database.Dialect = dialect
	}
	if dsn := os.Getenv(prefix + "_DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}

	if level := os.Getenv(prefix + "_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv(prefix + "_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	if addr := os.Getenv(prefix + "_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}
	if password := os.Getenv(prefix + "_REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if db := os.Getenv(prefix + "_REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("%s_REDIS_DB: %w", prefix, err)
		}
		c.Redis.DB = n
	}

	if url := os.Getenv(prefix + "_WEBHOOK_URL"); url != "" {
		c.Notifier.URL = url
	}
	if token := os.Getenv(prefix + "_WEBHOOK_TOKEN"); token != "" {
		c.Notifier.Token = token
	}

	if file := os.Getenv(prefix + "_WATCH_FILE"); file != "" {
		c.Watch.ScanFile = file
	}
	if site := os.Getenv(prefix + "_WATCH_SITE"); site != "" {
		c.Watch.SiteID = site
	}
	return nil
}

// Validate checks values the server cannot start without
func (c *Config) Validate() error {
	switch c.Database.Dialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database dialect %q", c.Database.Dialect)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Capacity.MinBlock < 1 || c.Capacity.MaxBlock < c.Capacity.MinBlock {
		return fmt.Errorf("capacity block range %d..%d is invalid", c.Capacity.MinBlock, c.Capacity.MaxBlock)
	}
	if c.Watch.ScanFile != "" && c.Watch.SiteID == "" {
		return fmt.Errorf("watch.site_id is required when watch.scan_file is set")
	}
	return nil
}
