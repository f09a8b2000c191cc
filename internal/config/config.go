package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentBinary is the agent executable name without the platform suffix.
const AgentBinary = "vros-steamvr-agent"

// Config holds vros runtime configuration.
type Config struct {
	// DataDir is the base directory for vros runtime data.
	DataDir string `yaml:"data_dir"`

	// BinDir is the directory containing vros binaries.
	BinDir string `yaml:"bin_dir"`

	// AgentPath is the agent executable. Empty means AgentBinary in BinDir.
	AgentPath string `yaml:"agent_path"`

	// DBPath is the path to the SQLite session history.
	DBPath string `yaml:"db_path"`

	// LogsDir is the directory for per-session agent diagnostics.
	LogsDir string `yaml:"logs_dir"`

	// MaxFrameSize caps protocol frames in both directions.
	MaxFrameSize uint32 `yaml:"max_frame_size"`

	// HandshakeTimeout bounds the wait for the agent's first message.
	// Zero means no limit.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// ExitGrace is how long the host keeps reading after the agent exits
	// during the handshake.
	ExitGrace time.Duration `yaml:"exit_grace"`

	// TickRate is the agent loop frequency in Hz.
	TickRate int `yaml:"tick_rate"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	vrosDir := filepath.Join(homeDir, ".vros")

	return &Config{
		DataDir:          filepath.Join(vrosDir, "data"),
		BinDir:           executableDir(),
		DBPath:           filepath.Join(vrosDir, "data", "vros.db"),
		LogsDir:          filepath.Join(vrosDir, "data", "logs"),
		MaxFrameSize:     1024 * 1024,
		HandshakeTimeout: 30 * time.Second,
		ExitGrace:        2 * time.Second,
		TickRate:         120,
		LogLevel:         "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".vros", "config.yaml")
}

// Load returns the defaults overlaid with the YAML file at path (when it
// exists) and then with VROS_* environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from VROS_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("VROS_DATA_DIR", &c.DataDir)
	str("VROS_BIN_DIR", &c.BinDir)
	str("VROS_AGENT_PATH", &c.AgentPath)
	str("VROS_DB_PATH", &c.DBPath)
	str("VROS_LOGS_DIR", &c.LogsDir)
	str("VROS_LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("VROS_MAX_FRAME_SIZE"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("VROS_MAX_FRAME_SIZE: %w", err)
		}
		c.MaxFrameSize = uint32(n)
	}
	if v, ok := lookup("VROS_TICK_RATE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VROS_TICK_RATE: %w", err)
		}
		c.TickRate = n
	}
	if err := dur("VROS_HANDSHAKE_TIMEOUT", &c.HandshakeTimeout); err != nil {
		return err
	}
	return dur("VROS_EXIT_GRACE", &c.ExitGrace)
}

// Validate rejects values the agent or host cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxFrameSize == 0:
		return errors.New("config: max_frame_size must be positive")
	case c.TickRate <= 0:
		return errors.New("config: tick_rate must be positive")
	case c.HandshakeTimeout < 0:
		return errors.New("config: handshake_timeout must not be negative")
	case c.ExitGrace < 0:
		return errors.New("config: exit_grace must not be negative")
	}
	return nil
}

// ResolveAgentPath returns AgentPath, or the platform agent binary in
// BinDir when unset.
func (c *Config) ResolveAgentPath() string {
	if c.AgentPath != "" {
		return c.AgentPath
	}
	name := AgentBinary
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(c.BinDir, name)
}

// EnsureDirs creates all required directories.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.DBPath),
		c.LogsDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// executableDir returns the directory containing the current executable.
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
