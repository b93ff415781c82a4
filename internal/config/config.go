// Package config holds the Atlas service configuration and its defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Origin OriginConfig `yaml:"origin"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port"` // default 7130
	Host string `yaml:"host"` // default "127.0.0.1"
}

type StoreConfig struct {
	Type     string `yaml:"type"`     // "redis", "bolt" or "memory"
	Addr     string `yaml:"addr"`     // redis address, default "127.0.0.1:6379"
	Password string `yaml:"password"` // redis password, empty for none
	DB       int    `yaml:"db"`       // redis database number
	DataDir  string `yaml:"dataDir"`  // bolt data directory, default "~/.atlas/data"
}

type OriginConfig struct {
	BaseURL      string `yaml:"baseURL"`
	ServiceToken string `yaml:"serviceToken"` // privileged credential for toFarmsOnly fetches
	Timeout      int    `yaml:"timeout"`      // default 30 (seconds)
}

type CacheConfig struct {
	RebuildDisabled bool `yaml:"rebuildDisabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // default "info"
	Format string `yaml:"format"` // default "console"
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7130,
			Host: "127.0.0.1",
		},
		Store: StoreConfig{
			Type:    "redis",
			Addr:    "127.0.0.1:6379",
			DataDir: defaultDataDir(),
		},
		Origin: OriginConfig{
			Timeout: 30,
		},
		Cache: CacheConfig{},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path is not
// an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ServerAddress returns the listen address in "host:port" format.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DBPath returns the full path to the BoltDB file (DataDir + "/atlas.db").
func (c *Config) DBPath() string {
	return filepath.Join(c.Store.DataDir, "atlas.db")
}

// OriginTimeout returns the origin request timeout as a Duration.
func (c *Config) OriginTimeout() time.Duration {
	return time.Duration(c.Origin.Timeout) * time.Second
}

// defaultDataDir resolves the default data directory.
// It uses os.UserHomeDir() + "/.atlas/data", falling back to
// "/tmp/atlas/data" if the home directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "atlas", "data")
	}
	return filepath.Join(home, ".atlas", "data")
}
