// Package config loads and validates the assetbuilder configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// DefaultConfigFile is the file name looked up when --config is not given.
const DefaultConfigFile = "assetbuilder.yaml"

// Config is the immutable input of a build pass. It is loaded once per
// process invocation and never mutated afterwards.
type Config struct {
	Mode           Mode          `yaml:"mode"`
	Output         string        `yaml:"output"`
	Entries        []EntryConfig `yaml:"entries"`
	Templates      []string      `yaml:"templates,omitempty"`
	Rules          []RuleConfig  `yaml:"rules"`
	ExcludeOutputs []string      `yaml:"exclude_outputs,omitempty"`
	Static         []StaticCopy  `yaml:"static,omitempty"`
	Link           LinkConfig    `yaml:"link"`
	Build          BuildConfig   `yaml:"build"`
	Server         ServerConfig  `yaml:"server"`

	// BaseDir is the directory relative paths were resolved against.
	BaseDir string `yaml:"-"`
}

// EntryConfig declares a named script entry point.
type EntryConfig struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// RuleConfig declares one transform rule. Exactly one of Test (regular
// expression) or Glob (doublestar pattern) must be set.
type RuleConfig struct {
	Test    string       `yaml:"test,omitempty"`
	Glob    string       `yaml:"glob,omitempty"`
	Include []string     `yaml:"include,omitempty"`
	Exclude []string     `yaml:"exclude,omitempty"`
	Use     []StepConfig `yaml:"use"`
}

// StepConfig names a transform step and its options. In YAML a bare string is
// accepted as shorthand for a step without options.
type StepConfig struct {
	ID      string         `yaml:"id"`
	Options map[string]any `yaml:"options,omitempty"`
}

// UnmarshalYAML accepts either `sass` or `{id: sass, options: {...}}`.
func (s *StepConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.ID = strings.TrimSpace(node.Value)
		return nil
	}
	type plain StepConfig
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = StepConfig(p)
	return nil
}

// StaticCopy copies a source directory verbatim into the output tree.
type StaticCopy struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// LinkConfig controls how a script entry's module graph becomes one file.
type LinkConfig struct {
	Linker LinkerKind `yaml:"linker"`
	Target string     `yaml:"target"`
	Format string     `yaml:"format"`
}

// BuildConfig tunes the orchestrator.
type BuildConfig struct {
	// Concurrency bounds parallel file transforms; 0 means GOMAXPROCS.
	Concurrency int `yaml:"concurrency"`
	// CacheSize is the number of transform outputs kept between passes; 0 disables caching.
	CacheSize int `yaml:"cache_size"`
}

// ServerConfig configures the dev server loop.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Compress     bool          `yaml:"compress"`
	LiveReload   bool          `yaml:"live_reload"`
	Metrics      bool          `yaml:"metrics"`
	Debounce     time.Duration `yaml:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Stats        StatsConfig   `yaml:"stats"`
}

// StatsConfig selects which parts of a pass report are logged. None of these
// affect what gets built.
type StatsConfig struct {
	Assets   bool `yaml:"assets"`
	Cached   bool `yaml:"cached"`
	Reasons  bool `yaml:"reasons"`
	Warnings bool `yaml:"warnings"`
}

// Load reads the configuration file at path, applies .env values, environment
// overrides and defaults, resolves relative paths against the file's
// directory and validates the result.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve config path").Fatal().Build()
	}
	baseDir := filepath.Dir(absPath)

	if err := loadEnvFile(baseDir); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").WithContext("path", absPath).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read config file").Fatal().WithContext("path", absPath).Build()
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))), baseDir)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML content into a validated Config. Relative paths are
// resolved against baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes to the defaults.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "decode config").Fatal().Build()
	}
	applyEnvOverrides(cfg)
	if err := normalize(cfg, baseDir); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Abs resolves p against the configuration's base directory.
func (c *Config) Abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.BaseDir, p)
}

// Addr returns the dev server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
