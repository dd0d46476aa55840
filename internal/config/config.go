package config

import (
	// Make the sync.hash choices available to go-digest.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"
)

// ErrorPolicy defines what a sync run does when a single action fails
type ErrorPolicy string

const (
	OnErrorAbort    ErrorPolicy = "abort"
	OnErrorContinue ErrorPolicy = "continue"
)

// DefaultLockTimeout bounds how long a run waits for another run on the same
// destination to finish.
const DefaultLockTimeout = 30 * time.Second

// Config represents the complete hashsync configuration
type Config struct {
	Paths PathsConfig `yaml:"paths"`
	Sync  SyncConfig  `yaml:"sync"`
	Lock  LockConfig  `yaml:"lock"`
}

// PathsConfig configures the trees to reconcile
type PathsConfig struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	Hash        digest.Algorithm `yaml:"hash"`
	OnError     ErrorPolicy      `yaml:"on_error"`
	KeepOrphans bool             `yaml:"keep_orphans"`
}

// LockConfig configures the per-destination lock
type LockConfig struct {
	Disabled bool          `yaml:"disabled"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns a configuration with every default applied and no paths.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.validateSettings(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Paths.Source = os.ExpandEnv(c.Paths.Source)
	c.Paths.Dest = os.ExpandEnv(c.Paths.Dest)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Sync.Hash == "" {
		c.Sync.Hash = digest.Canonical
	}
	if c.Sync.OnError == "" {
		c.Sync.OnError = OnErrorAbort
	}
	if c.Lock.Timeout == 0 {
		c.Lock.Timeout = DefaultLockTimeout
	}
}

// SetPaths overrides the configured trees, typically from the command line.
// Relative paths are made absolute.
func (c *Config) SetPaths(source, dest string) error {
	src, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("failed to resolve source path: %w", err)
	}
	dst, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("failed to resolve dest path: %w", err)
	}
	c.Paths.Source = src
	c.Paths.Dest = dst
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Paths.Source == "" {
		return fmt.Errorf("paths.source is required")
	}
	if c.Paths.Dest == "" {
		return fmt.Errorf("paths.dest is required")
	}

	// Ensure paths are absolute
	if !filepath.IsAbs(c.Paths.Source) {
		return fmt.Errorf("paths.source must be an absolute path: %s", c.Paths.Source)
	}
	if !filepath.IsAbs(c.Paths.Dest) {
		return fmt.Errorf("paths.dest must be an absolute path: %s", c.Paths.Dest)
	}

	// The trees must not contain each other
	if within(c.Paths.Source, c.Paths.Dest) || within(c.Paths.Dest, c.Paths.Source) {
		return fmt.Errorf("paths.source and paths.dest must not overlap: %s, %s", c.Paths.Source, c.Paths.Dest)
	}

	return c.validateSettings()
}

// validateSettings checks everything but the paths, which may still be
// supplied on the command line after the file is loaded.
func (c *Config) validateSettings() error {
	if c.Paths.Source != "" && !filepath.IsAbs(c.Paths.Source) {
		return fmt.Errorf("paths.source must be an absolute path: %s", c.Paths.Source)
	}
	if c.Paths.Dest != "" && !filepath.IsAbs(c.Paths.Dest) {
		return fmt.Errorf("paths.dest must be an absolute path: %s", c.Paths.Dest)
	}

	if !c.Sync.Hash.Available() {
		return fmt.Errorf("invalid sync.hash: %s (must be sha256, sha384, or sha512)", c.Sync.Hash)
	}

	switch c.Sync.OnError {
	case OnErrorAbort, OnErrorContinue:
		// valid
	default:
		return fmt.Errorf("invalid sync.on_error policy: %s (must be abort or continue)", c.Sync.OnError)
	}

	if c.Lock.Timeout < 0 {
		return fmt.Errorf("lock.timeout must not be negative: %s", c.Lock.Timeout)
	}

	return nil
}

// within reports whether path equals base or lies below it.
func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
