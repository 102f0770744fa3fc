// Package config loads the optional splitter configuration. With no config
// file, no .env entries and no flags, the defaults reproduce the plain batch
// run: built-in exclusions, one worker, files written.
//
// This package has no dependencies on other internal packages.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/erisprotocol/contracts-tokenfactory/kit/colorlog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is looked up in the root when no explicit path is given.
	FileName = "schemasplit.yaml"
	// EnvFileName is read from the root; real environment variables win.
	EnvFileName = ".env"

	envWorkers  = "SCHEMASPLIT_WORKERS"
	envLogLevel = "SCHEMASPLIT_LOG_LEVEL"
	envDryRun   = "SCHEMASPLIT_DRY_RUN"

	defaultDebounce = 150 * time.Millisecond
)

type Config struct {
	// Exclude adds directory-name substrings to the built-in exclusions.
	Exclude []string `yaml:"exclude"`
	// ExcludeGlobs are doublestar patterns matched against directory paths
	// relative to the root.
	ExcludeGlobs []string      `yaml:"exclude_globs"`
	Workers      int           `yaml:"workers"`
	DryRun       bool          `yaml:"dry_run"`
	LogLevel     string        `yaml:"log_level"`
	Debounce     time.Duration `yaml:"debounce"`

	// Source is the config file that was read, empty when none was.
	Source string `yaml:"-"`
}

func Default() *Config {
	return &Config{
		Workers:  1,
		LogLevel: "info",
		Debounce: defaultDebounce,
	}
}

// Parse parses and validates YAML config bytes over the defaults.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFile reads and parses a config file
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// Load builds the configuration for a run over root. An explicit path must
// exist; otherwise root/schemasplit.yaml is used when present. SCHEMASPLIT_*
// variables from the environment or root/.env override file values.
func Load(root, path string) (*Config, error) {
	var cfg *Config
	switch {
	case path != "":
		c, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		c, err := ParseFile(filepath.Join(root, FileName))
		switch {
		case err == nil:
			cfg = c
		case errors.Is(err, os.ErrNotExist):
			cfg = Default()
		default:
			return nil, err
		}
	}

	env, err := readEnvFile(filepath.Join(root, EnvFileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Level returns the parsed log level. Config values are validated, so an
// unknown level cannot reach here through Load or Parse.
func (c *Config) Level() slog.Level {
	lvl, _ := colorlog.ParseLevel(c.LogLevel)
	return lvl
}

func readEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return env, nil
}

func (c *Config) applyEnv(file map[string]string) error {
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}

	if v, ok := lookup(envWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envWorkers, err)
		}
		c.Workers = n
	}
	if v, ok := lookup(envDryRun); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envDryRun, err)
		}
		c.DryRun = b
	}
	if v, ok := lookup(envLogLevel); ok {
		c.LogLevel = v
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Debounce < 0 {
		return fmt.Errorf("config: debounce must not be negative, got %s", cfg.Debounce)
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = defaultDebounce
	}
	if _, err := colorlog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	for i, g := range cfg.ExcludeGlobs {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("config: exclude_globs[%d] is not a valid pattern: %q", i, g)
		}
	}
	for i, s := range cfg.Exclude {
		if s == "" {
			return fmt.Errorf("config: exclude[%d] is empty", i)
		}
	}
	return nil
}
