// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

// Package config loads vncdriver command settings from a TOML or YAML file
// and VNCDRIVER_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tenthirtyam/vncdriver"
)

// Defaults.
const (
	DefaultAddress        = "localhost:5900"
	DefaultConnectTimeout = 10 * time.Second
	DefaultLogLevel       = "info"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VNCDRIVER_"

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the settings of the vncdriver command.
type Config struct {
	Address        string   `toml:"address" yaml:"address"`
	Password       string   `toml:"password" yaml:"password"`
	ConnectTimeout Duration `toml:"connect_timeout" yaml:"connect_timeout"`
	Exclusive      bool     `toml:"exclusive" yaml:"exclusive"`

	// Rate is input events per second; nil keeps the default pacing.
	Rate *float64 `toml:"rate" yaml:"rate"`

	IdleTimeout  Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`

	// CaptureMode is "overwrite" or "composite". It has no default; the
	// screenshot command requires it from the file, environment or flags.
	CaptureMode string `toml:"capture_mode" yaml:"capture_mode"`

	// Output is a PNG file, or a directory that receives timestamped frames.
	Output string `toml:"output" yaml:"output"`

	LogLevel string `toml:"log_level" yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Address:        DefaultAddress,
		ConnectTimeout: Duration{DefaultConnectTimeout},
		IdleTimeout:    Duration{vncdriver.DefaultIdleTimeout},
		PollInterval:   Duration{vncdriver.DefaultPollInterval},
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path or a missing file yields
// the defaults. The format follows the extension: .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q, want .toml, .yaml or .yml", ext)
	}
	return cfg, nil
}

// ApplyEnvOverrides replaces settings with VNCDRIVER_* variables found by
// lookup, typically os.LookupEnv.
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	duration := func(name string, dst *Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		return nil
	}

	str("ADDRESS", &c.Address)
	str("PASSWORD", &c.Password)
	str("CAPTURE_MODE", &c.CaptureMode)
	str("OUTPUT", &c.Output)
	str("LOG_LEVEL", &c.LogLevel)

	for name, dst := range map[string]*Duration{
		"CONNECT_TIMEOUT": &c.ConnectTimeout,
		"IDLE_TIMEOUT":    &c.IdleTimeout,
		"POLL_INTERVAL":   &c.PollInterval,
	} {
		if err := duration(name, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvPrefix + "RATE"); ok && v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE: %w", EnvPrefix, err)
		}
		c.Rate = &rate
	}
	if v, ok := lookup(EnvPrefix + "EXCLUSIVE"); ok && v != "" {
		exclusive, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sEXCLUSIVE: %w", EnvPrefix, err)
		}
		c.Exclusive = exclusive
	}
	return nil
}

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid setting.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Address) == "" {
		add("address", "must not be empty")
	}
	if c.ConnectTimeout.Duration < 0 {
		add("connect_timeout", "must not be negative, got %s", c.ConnectTimeout)
	}
	if c.IdleTimeout.Duration < 0 {
		add("idle_timeout", "must not be negative, got %s", c.IdleTimeout)
	}
	if c.PollInterval.Duration < 0 {
		add("poll_interval", "must not be negative, got %s", c.PollInterval)
	}
	if _, err := vncdriver.PacingInterval(c.Rate); err != nil {
		add("rate", "must be a positive finite number, got %v", *c.Rate)
	}
	if c.CaptureMode != "" {
		if _, err := vncdriver.ParseCaptureMode(c.CaptureMode); err != nil {
			add("capture_mode", "must be overwrite or composite, got %q", c.CaptureMode)
		}
	}
	if _, err := vncdriver.ParseLogLevel(c.LogLevel); err != nil {
		add("log_level", "unknown level %q", c.LogLevel)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
