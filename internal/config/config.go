// Package config loads project settings from .solidex.yaml, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jward/solidex/internal/model"
)

// FileName is the project config file looked up at the root.
const FileName = ".solidex.yaml"

// Environment overrides.
const (
	EnvAnalyzer     = "SOLIDEX_ANALYZER"
	EnvAnalyzerName = "SOLIDEX_ANALYZER_NAME"
	EnvDebounce     = "SOLIDEX_DEBOUNCE"
)

type Config struct {
	Analyzer struct {
		// Command is the analyzer argv; the project is written to its stdin.
		Command []string      `yaml:"command"`
		Name    string        `yaml:"name"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"analyzer"`

	Include  []string      `yaml:"include"`
	Exclude  []string      `yaml:"exclude"`
	Debounce time.Duration `yaml:"debounce"`

	Hierarchy struct {
		MaxDepth int `yaml:"max_depth"`
		MaxItems int `yaml:"max_items"`
	} `yaml:"hierarchy"`

	Findings struct {
		MinSeverity   string   `yaml:"min_severity"`
		MinConfidence string   `yaml:"min_confidence"`
		Hidden        []string `yaml:"hidden"`
	} `yaml:"findings"`

	Detectors struct {
		ScriptsDir string `yaml:"scripts_dir"`
	} `yaml:"detectors"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := &Config{
		Include:  []string{"**/*.sol"},
		Exclude:  []string{"node_modules/**", "lib/**", "out/**", "cache/**"},
		Debounce: 300 * time.Millisecond,
		LogLevel: "info",
	}
	cfg.Analyzer.Name = "slither"
	cfg.Analyzer.Timeout = 5 * time.Minute
	cfg.Hierarchy.MaxDepth = 16
	cfg.Hierarchy.MaxItems = 2000
	cfg.Findings.MinSeverity = model.SeverityOptimization.String()
	cfg.Findings.MinConfidence = model.ConfidenceLow.String()
	return cfg
}

// Load reads root/.solidex.yaml over the defaults when present, loads
// root/.env into the environment without overriding existing variables, and
// applies the SOLIDEX_* overrides.
func Load(root string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(root, ".env"))

	cfg := Default()
	data, err := os.ReadFile(filepath.Join(root, FileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", FileName, err)
		}
	}

	if v := os.Getenv(EnvAnalyzer); v != "" {
		cfg.Analyzer.Command = strings.Fields(v)
	}
	if v := os.Getenv(EnvAnalyzerName); v != "" {
		cfg.Analyzer.Name = v
	}
	if v := os.Getenv(EnvDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvDebounce, err)
		}
		cfg.Debounce = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enum values.
func (c *Config) Validate() error {
	var errs []error
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce must not be negative"))
	}
	if c.Analyzer.Timeout < 0 {
		errs = append(errs, fmt.Errorf("analyzer.timeout must not be negative"))
	}
	if c.Hierarchy.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("hierarchy.max_depth must be at least 1"))
	}
	if c.Hierarchy.MaxItems < 1 {
		errs = append(errs, fmt.Errorf("hierarchy.max_items must be at least 1"))
	}
	if _, err := c.MinSeverity(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.MinConfidence(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// MinSeverity parses findings.min_severity; empty means no restriction.
func (c *Config) MinSeverity() (model.Severity, error) {
	if c.Findings.MinSeverity == "" {
		return model.SeverityOptimization, nil
	}
	return model.ParseSeverity(c.Findings.MinSeverity)
}

// MinConfidence parses findings.min_confidence; empty means no restriction.
func (c *Config) MinConfidence() (model.Confidence, error) {
	if c.Findings.MinConfidence == "" {
		return model.ConfidenceLow, nil
	}
	return model.ParseConfidence(c.Findings.MinConfidence)
}

// Level parses log_level; empty means info.
func (c *Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
