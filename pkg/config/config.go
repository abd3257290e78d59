// Package config loads the gateway's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the gateway configuration.
type Config struct {
	// Listen is the address the websocket listener binds to.
	Listen string `yaml:"listen"`

	// PingInterval is the liveness sweep period. One missed pong within a
	// period disconnects the session.
	PingInterval Duration `yaml:"pingInterval"`

	// MDNS enables DNS-SD advertisement of the gateway service.
	MDNS bool `yaml:"mdns"`

	// TraceFile, if set, enables the CBOR protocol trace.
	TraceFile string `yaml:"traceFile"`

	// LogLevel is the zerolog level: debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:       ":3000",
		PingInterval: Duration(30 * time.Second),
		MDNS:         false,
		LogLevel:     "info",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.PingInterval.Std() <= 0 {
		return fmt.Errorf("pingInterval must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
