// Package config handles loading issues.toml configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/amonks/issues/internal/paths"
)

// ProjectFileName is the per-directory config file name.
const ProjectFileName = "issues.toml"

const (
	// DefaultAddr is where `issues serve` listens by default.
	DefaultAddr = "127.0.0.1:8089"
	// DefaultSessionTTL is how long sign-in sessions last.
	DefaultSessionTTL = 30 * 24 * time.Hour
	// DefaultLogLevel is the server log level.
	DefaultLogLevel = "info"
)

// ErrInvalidConfig indicates a config value could not be interpreted.
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the issues.toml configuration file.
type Config struct {
	Server Server `toml:"server"`
	Client Client `toml:"client"`
}

// Server contains `issues serve` configuration.
type Server struct {
	// Addr is the host:port to listen on.
	Addr string `toml:"addr"`
	// Database is the SQLite database path. A leading ~/ expands to $HOME.
	Database string `toml:"database"`
	// SessionTTL is a Go duration string such as "720h".
	SessionTTL string `toml:"session-ttl"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log-level"`
}

// Client contains configuration for commands that talk to a server.
type Client struct {
	// Server is the base URL of the issues server.
	Server string `toml:"server"`
}

// Load loads configuration from dir and the global config file, then fills
// in defaults. Returns a default config if no config files exist.
func Load(dir string) (*Config, error) {
	globalPath, err := globalConfigPath()
	if err != nil {
		return nil, err
	}

	globalCfg, globalMeta, err := loadConfigFile(globalPath)
	if err != nil {
		return nil, err
	}

	projectCfg, projectMeta, err := loadConfigFile(filepath.Join(dir, ProjectFileName))
	if err != nil {
		return nil, err
	}

	merged := mergeConfigs(globalCfg, projectCfg, globalMeta, projectMeta)
	if err := merged.applyDefaults(); err != nil {
		return nil, err
	}
	return merged, nil
}

// ServerURL returns the base URL clients should use.
func (c *Config) ServerURL() string {
	if c.Client.Server != "" {
		return strings.TrimRight(c.Client.Server, "/")
	}
	return "http://" + c.Server.Addr
}

// SessionTTLDuration parses Server.SessionTTL.
func (c *Config) SessionTTLDuration() (time.Duration, error) {
	if c.Server.SessionTTL == "" {
		return DefaultSessionTTL, nil
	}
	ttl, err := time.ParseDuration(c.Server.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("%w: session-ttl %q: %v", ErrInvalidConfig, c.Server.SessionTTL, err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: session-ttl must be positive", ErrInvalidConfig)
	}
	return ttl, nil
}

func (c *Config) applyDefaults() error {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Server.Database == "" {
		path, err := paths.DefaultDatabasePath()
		if err != nil {
			return err
		}
		c.Server.Database = path
	} else {
		path, err := paths.ExpandHome(c.Server.Database)
		if err != nil {
			return err
		}
		c.Server.Database = path
	}
	if _, err := c.SessionTTLDuration(); err != nil {
		return err
	}
	return nil
}

func globalConfigPath() (string, error) {
	dir, err := paths.DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func loadConfigFile(path string) (*Config, toml.MetaData, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, toml.MetaData{}, nil
	}
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return &cfg, meta, nil
}

func mergeConfigs(globalCfg, projectCfg *Config, globalMeta, projectMeta toml.MetaData) *Config {
	if globalCfg == nil {
		globalCfg = &Config{}
	}
	if projectCfg == nil {
		projectCfg = &Config{}
	}

	merged := Config{}
	merged.Server.Addr = mergeString(projectMeta.IsDefined("server", "addr"), projectCfg.Server.Addr, globalCfg.Server.Addr)
	merged.Server.Database = mergeString(projectMeta.IsDefined("server", "database"), projectCfg.Server.Database, globalCfg.Server.Database)
	merged.Server.SessionTTL = mergeString(projectMeta.IsDefined("server", "session-ttl"), projectCfg.Server.SessionTTL, globalCfg.Server.SessionTTL)
	merged.Server.LogLevel = mergeString(projectMeta.IsDefined("server", "log-level"), projectCfg.Server.LogLevel, globalCfg.Server.LogLevel)
	merged.Client.Server = mergeString(projectMeta.IsDefined("client", "server"), projectCfg.Client.Server, globalCfg.Client.Server)

	return &merged
}

func mergeString(projectDefined bool, projectValue, globalValue string) string {
	value := globalValue
	if projectDefined {
		value = projectValue
	}
	return strings.TrimSpace(value)
}
