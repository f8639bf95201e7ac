package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/aipo/horosafe"
	"github.com/hazyhaar/aipo/registry/internal/model"
)

// Config configures the registry service. Zero-valued paths derive from
// DataDir.
type Config struct {
	DataDir       string        `yaml:"data_dir"`
	DBPath        string        `yaml:"db_path"`
	ObsDBPath     string        `yaml:"obs_db_path"`
	CodeTable     string        `yaml:"code_table"`
	SearchURL     string        `yaml:"search_url"`
	DetailBaseURL string        `yaml:"detail_base_url"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxBytes      int64         `yaml:"max_bytes"`
	MarkdownDir   string        `yaml:"markdown_dir"` // empty disables the markdown buffer
	Listen        string        `yaml:"listen"`
	ProgressEvery int           `yaml:"progress_every"`
	LogFormat     string        `yaml:"log_format"` // json | text
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:       "data",
		SearchURL:     "https://aipo.am",
		DetailBaseURL: "https://old.aipa.am",
		UserAgent:     "aipo-registry/1.0",
		Timeout:       30 * time.Second,
		MaxBytes:      horosafe.MaxResponseBody,
		Listen:        "127.0.0.1:8086",
		ProgressEvery: 25,
		LogFormat:     "json",
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig
// merged with the file, environment overrides applied.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from AIPO_DATA_DIR and AIPO_LISTEN.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.DataDir = env(getenv, "AIPO_DATA_DIR", c.DataDir)
	c.Listen = env(getenv, "AIPO_LISTEN", c.Listen)
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if err := horosafe.ValidateBaseURL(c.SearchURL); err != nil {
		return fmt.Errorf("search_url: %w", err)
	}
	if err := horosafe.ValidateBaseURL(c.DetailBaseURL); err != nil {
		return fmt.Errorf("detail_base_url: %w", err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("max_bytes must be > 0")
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every must be >= 0")
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("unsupported log_format %q (use json or text)", c.LogFormat)
	}
	return nil
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "registry.db")
	}
	if c.ObsDBPath == "" {
		c.ObsDBPath = filepath.Join(c.DataDir, "observability.db")
	}
	if c.CodeTable == "" {
		c.CodeTable = filepath.Join(c.DataDir, "ICID codes.json")
	}
}

// IndexPath returns the registry index database path.
func (c *Config) IndexPath() string { c.defaults(); return c.DBPath }

// ObservabilityPath returns the observability database path.
func (c *Config) ObservabilityPath() string { c.defaults(); return c.ObsDBPath }

// SnapshotPath is data/<locale>/ICID.json.
func (c *Config) SnapshotPath(locale string) (string, error) { return c.localeFile(locale, "ICID.json") }

// CanonicalPath is data/<locale>/patents.json.
func (c *Config) CanonicalPath(locale string) (string, error) {
	return c.localeFile(locale, "patents.json")
}

// GapsPath is data/<locale>/gaps.json.
func (c *Config) GapsPath(locale string) (string, error) { return c.localeFile(locale, "gaps.json") }

// DetailsPath is data/<locale>/all_info.json.
func (c *Config) DetailsPath(locale string) (string, error) {
	return c.localeFile(locale, "all_info.json")
}

func (c *Config) localeFile(locale, name string) (string, error) {
	if !model.ValidLocale(locale) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocale, locale)
	}
	c.defaults()
	return horosafe.SafePath(c.DataDir, filepath.Join(locale, name))
}

func env(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}
