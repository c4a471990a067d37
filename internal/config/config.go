package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/treesnap/internal/pattern"
	"github.com/danieljhkim/treesnap/internal/scanner"
)

// Config is the top-level treesnap configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Diff     DiffConfig     `yaml:"diff"`
	Watch    WatchConfig    `yaml:"watch"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// SnapshotConfig holds scan defaults. They also apply to directories
// scanned as diff inputs.
type SnapshotConfig struct {
	Checksum       string        `yaml:"checksum"`
	Threads        int           `yaml:"threads"`
	FollowSymlinks bool          `yaml:"follow_symlinks"`
	MaxDepth       int           `yaml:"max_depth"`
	NormalizePaths bool          `yaml:"normalize_paths"`
	Exclude        []string      `yaml:"exclude"`
	IgnoreFile     string        `yaml:"ignore_file"`
	NoIgnoreFile   bool          `yaml:"no_ignore_file"`
	Timeout        time.Duration `yaml:"timeout"`
}

// DiffConfig holds comparison defaults.
type DiffConfig struct {
	IgnoreTime    bool `yaml:"ignore_time"`
	IgnoreMode    bool `yaml:"ignore_mode"`
	StructureOnly bool `yaml:"structure_only"`
}

// WatchConfig holds watch defaults.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load locates and reads the configuration. A missing file is an error only
// when it was named explicitly.
func Load(flagPath string) (*Config, error) {
	path, explicit, err := Locate(flagPath)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Path = path

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.Snapshot.IgnoreFile == "" {
		c.Snapshot.IgnoreFile = pattern.DefaultIgnoreFile
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 250 * time.Millisecond
	}
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Snapshot.Threads < 0 || c.Snapshot.Threads > scanner.MaxThreads {
		return fmt.Errorf("snapshot.threads must be between 0 and %d", scanner.MaxThreads)
	}
	if c.Snapshot.MaxDepth < 0 {
		return fmt.Errorf("snapshot.max_depth must not be negative")
	}
	if c.Snapshot.Timeout < 0 {
		return fmt.Errorf("snapshot.timeout must not be negative")
	}
	if _, err := pattern.Compile(c.Snapshot.Exclude); err != nil {
		return fmt.Errorf("snapshot.exclude: %w", err)
	}
	return nil
}

// IgnoreFileName returns the ignore file to read in each directory, or ""
// when ignore files are disabled.
func (c *Config) IgnoreFileName() string {
	if c.Snapshot.NoIgnoreFile {
		return ""
	}
	return c.Snapshot.IgnoreFile
}
