// Package config loads server configuration from TOML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full server configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Mongo  MongoConfig  `toml:"mongo"`
	Auth   AuthConfig   `toml:"auth"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig holds the listen address and shutdown grace period.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// MongoConfig holds the database connection settings.
type MongoConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// AuthConfig holds the token secrets and lifetimes. Secrets have no
// defaults: a server must not start with a guessable signing key.
type AuthConfig struct {
	AccessSecret  string   `toml:"access_secret"`
	RefreshSecret string   `toml:"refresh_secret"`
	AccessTTL     duration `toml:"access_ttl"`
	RefreshTTL    duration `toml:"refresh_ttl"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// duration lets TOML carry values like "15m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: duration{10 * time.Second},
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "taskhub",
		},
		Auth: AuthConfig{
			AccessTTL:  duration{15 * time.Minute},
			RefreshTTL: duration{7 * 24 * time.Hour},
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// StandardPaths returns the config file locations in priority order.
func StandardPaths() []string {
	paths := []string{"taskhub.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskhub", "taskhub.toml"))
	}
	return paths
}

// Load reads the first available standard location, then applies
// environment overrides. A missing file is not an error; missing
// secrets are.
func Load() (*Config, string, error) {
	cfg := Default()
	loadedFrom := ""

	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := loadFile(path, cfg); err != nil {
				return nil, path, err
			}
			loadedFrom = path
			break
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, loadedFrom, err
	}
	return cfg, loadedFrom, nil
}

// LoadFile reads one specific file plus environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnv lets deploy environments override the file without touching
// it. Secrets usually arrive this way.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "TASKHUB_ADDR")
	setString(&cfg.Mongo.URI, "TASKHUB_MONGO_URI")
	setString(&cfg.Mongo.Database, "TASKHUB_MONGO_DATABASE")
	setString(&cfg.Auth.AccessSecret, "TASKHUB_ACCESS_SECRET")
	setString(&cfg.Auth.RefreshSecret, "TASKHUB_REFRESH_SECRET")
	setString(&cfg.Log.Level, "TASKHUB_LOG_LEVEL")
	setDuration(&cfg.Auth.AccessTTL, "TASKHUB_ACCESS_TTL")
	setDuration(&cfg.Auth.RefreshTTL, "TASKHUB_REFRESH_TTL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			dst.Duration = parsed
		}
	}
}

func (c *Config) validate() error {
	if c.Auth.AccessSecret == "" {
		return fmt.Errorf("auth.access_secret is required (or TASKHUB_ACCESS_SECRET)")
	}
	if c.Auth.RefreshSecret == "" {
		return fmt.Errorf("auth.refresh_secret is required (or TASKHUB_REFRESH_SECRET)")
	}
	return nil
}

// AccessTTL returns the access token lifetime.
func (c *Config) AccessTTL() time.Duration { return c.Auth.AccessTTL.Duration }

// RefreshTTL returns the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration { return c.Auth.RefreshTTL.Duration }

// ShutdownTimeout returns the shutdown grace period.
func (c *Config) ShutdownTimeout() time.Duration { return c.Server.ShutdownTimeout.Duration }
