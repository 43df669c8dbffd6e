package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/logandonley/fontreg/internal/platform"
	"github.com/logandonley/fontreg/pkg/fm"
)

// Config holds the settings a fontreg run starts from. Command-line flags
// override it.
type Config struct {
	Scope         string          `yaml:"scope"`
	Log           Log             `yaml:"log"`
	CopyRetry     fm.RetryPolicy  `yaml:"copy_retry"`
	DeleteRetry   fm.RetryPolicy  `yaml:"delete_retry"`
	Cache         fm.CacheOptions `yaml:"cache"`
	OrphanCleanup bool            `yaml:"orphan_cleanup"`
	MetricsFile   string          `yaml:"metrics_file"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func Default() Config {
	return Config{
		Scope:         platform.ScopeUser.String(),
		Log:           Log{Level: "info", Format: "text"},
		CopyRetry:     fm.DefaultCopyPolicy,
		DeleteRetry:   fm.DefaultDeletePolicy,
		Cache:         fm.DefaultCacheOptions,
		OrphanCleanup: true,
	}
}

// DefaultPath is <user config dir>/fontreg/config.yaml
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("getting user config directory: %w", err)
	}
	return filepath.Join(dir, "fontreg", "config.yaml"), nil
}

// Load reads the config file at path over the defaults, then applies FONTREG_*
// environment overrides. An empty path means DefaultPath, which may be absent.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FONTREG_SCOPE"); v != "" {
		c.Scope = v
	}
	if v := os.Getenv("FONTREG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FONTREG_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("FONTREG_METRICS_FILE"); v != "" {
		c.MetricsFile = v
	}
	if v := os.Getenv("FONTREG_ORPHAN_CLEANUP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FONTREG_ORPHAN_CLEANUP: %w", err)
		}
		c.OrphanCleanup = b
	}
	if v := os.Getenv("FONTREG_CACHE_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FONTREG_CACHE_DEPTH: %w", err)
		}
		c.Cache.MaxDepth = n
	}
	return nil
}

// Validate checks the fields that are parsed later
func (c Config) Validate() error {
	if _, err := platform.ParseScope(c.Scope); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func (c Config) ParsedScope() platform.Scope {
	s, _ := platform.ParseScope(c.Scope)
	return s
}

func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}
