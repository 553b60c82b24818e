// Package config provides configuration for the annolens agent.
// Values resolve in three layers: built-in defaults, an optional TOML
// config file in the data directory, then ANNOLENS_* environment variable
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".annolens"
	DefaultWorkers  = 4

	EnvPort     = "ANNOLENS_PORT"
	EnvLogLevel = "ANNOLENS_LOG_LEVEL"
	EnvDataDir  = "ANNOLENS_DATA_DIR"
	EnvInboxDir = "ANNOLENS_INBOX_DIR"
	EnvWorkers  = "ANNOLENS_WORKERS"

	DBFilename     = "annolens.db"
	ConfigFilename = "config.toml"
)

// Config defines the application configuration interface.
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	InboxDir() string
	Workers() int
}

// fileConfig is the TOML config file shape.
type fileConfig struct {
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
	InboxDir string `toml:"inbox_dir"`
	Workers  int    `toml:"workers"`
}

// EnvConfig resolves configuration from defaults, the config file, and
// environment variables, in that order.
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	inboxDir string
	workers  int
}

// New loads the agent configuration. The data directory is resolved
// first (env wins) so the config file can live inside it.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:     DefaultPort,
		logLevel: DefaultLogLevel,
		dataDir:  defaultDataDir(),
		workers:  DefaultWorkers,
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if err := cfg.loadFile(); err != nil {
		return nil, err
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		cfg.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	if inbox := os.Getenv(EnvInboxDir); inbox != "" {
		cfg.inboxDir = inbox
	}
	if w := os.Getenv(EnvWorkers); w != "" {
		workers, err := strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvWorkers, err)
		}
		cfg.workers = workers
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.port)
	}
	if cfg.workers < 1 {
		return nil, fmt.Errorf("invalid workers %d: must be at least 1", cfg.workers)
	}

	return cfg, nil
}

// loadFile merges the optional TOML config file. A missing file is fine;
// a malformed one is not.
func (c *EnvConfig) loadFile() error {
	path := filepath.Join(c.dataDir, ConfigFilename)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.InboxDir != "" {
		c.inboxDir = fc.InboxDir
	}
	if fc.Workers != 0 {
		c.workers = fc.Workers
	}
	return nil
}

func (c *EnvConfig) Port() int {
	return c.port
}

func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file.
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// InboxDir returns the watched inbox directory; empty disables watching.
func (c *EnvConfig) InboxDir() string {
	return c.inboxDir
}

// Workers returns the number of concurrent file parsers per batch.
func (c *EnvConfig) Workers() int {
	return c.workers
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
