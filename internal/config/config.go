// Package config loads the gateway configuration from YAML with RUNLET_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runlet configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Redis       RedisConfig       `yaml:"redis"`
	Engine      EngineConfig      `yaml:"engine"`
	Admin       AdminConfig       `yaml:"admin"`
	Logging     LoggingConfig     `yaml:"logging"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig governs the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Throttle is a process-wide requests-per-second ceiling applied before
	// per-route limits. Zero disables it.
	Throttle      float64 `yaml:"throttle"`
	ThrottleBurst int     `yaml:"throttle_burst"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "memory" (default) or "postgres"
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the Redis rate-limit backend when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EngineConfig governs script execution.
type EngineConfig struct {
	// DisabledLanguages lists languages rejected with 503 at request time.
	DisabledLanguages []string `yaml:"disabled_languages"`
	// Interpreters overrides the interpreter binary per language.
	Interpreters   map[string]string `yaml:"interpreters"`
	DefaultTimeout time.Duration     `yaml:"default_timeout"`
	WorkDir        string            `yaml:"work_dir"`
}

// AdminConfig governs the management API.
type AdminConfig struct {
	// Token protects /admin. Empty leaves the API open; only sensible in
	// development.
	Token string `yaml:"token"`
	// AuthAttempts and AuthWindow bound failed token presentations per
	// client IP before 429s are returned.
	AuthAttempts int           `yaml:"auth_attempts"`
	AuthWindow   time.Duration `yaml:"auth_window"`
}

// LoggingConfig governs the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" (default) or "console"
}

// MaintenanceConfig governs background housekeeping.
type MaintenanceConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	LogQueueDepth int           `yaml:"log_queue_depth"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Load reads the configuration file at path, applies environment overrides
// and normalizes defaults. A missing file is not an error; overrides and
// defaults still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to env + defaults.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays RUNLET_* environment variables onto the loaded file.
func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "RUNLET_ADDR")
	setString(&c.Storage.Driver, "RUNLET_STORE")
	setString(&c.Storage.DSN, "RUNLET_PG_DSN")
	setString(&c.Redis.Addr, "RUNLET_REDIS_ADDR")
	setString(&c.Redis.Password, "RUNLET_REDIS_PASSWORD")
	setString(&c.Admin.Token, "RUNLET_ADMIN_TOKEN")
	setString(&c.Logging.Level, "RUNLET_LOG_LEVEL")
	setString(&c.Logging.Format, "RUNLET_LOG_FORMAT")
	setString(&c.Engine.WorkDir, "RUNLET_WORK_DIR")

	if v := strings.TrimSpace(os.Getenv("RUNLET_DISABLED_LANGUAGES")); v != "" {
		c.Engine.DisabledLanguages = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("RUNLET_DEFAULT_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.DefaultTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("RUNLET_SWEEP_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Maintenance.SweepInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("RUNLET_THROTTLE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Server.Throttle = f
		}
	}
}

// Normalize fills defaults and trims whitespace.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		// Must exceed the longest execution timeout a route may configure.
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.ThrottleBurst <= 0 {
		c.Server.ThrottleBurst = 100
	}

	c.Storage.Driver = strings.TrimSpace(strings.ToLower(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	c.Storage.DSN = strings.TrimSpace(c.Storage.DSN)

	if c.Engine.DefaultTimeout <= 0 {
		c.Engine.DefaultTimeout = 30 * time.Second
	}

	if c.Admin.AuthAttempts <= 0 {
		c.Admin.AuthAttempts = 10
	}
	if c.Admin.AuthWindow <= 0 {
		c.Admin.AuthWindow = time.Minute
	}

	c.Logging.Level = strings.TrimSpace(strings.ToLower(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.TrimSpace(strings.ToLower(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Maintenance.SweepInterval <= 0 {
		c.Maintenance.SweepInterval = time.Minute
	}
	if c.Maintenance.LogQueueDepth <= 0 {
		c.Maintenance.LogQueueDepth = 256
	}
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage: postgres driver requires a dsn")
		}
	default:
		return fmt.Errorf("storage: unsupported driver %q", c.Storage.Driver)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
