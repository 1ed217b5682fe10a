package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with the engine's built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Pool:   PoolConfig{MaxOpen: 8, MaxIdle: 4, IdleTimeoutSeconds: 300},
		Vector: VectorConfig{DefaultDimensions: 8},
		Monitor: MonitorConfig{
			SampleIntervalSeconds: 15,
		},
	}
}

// Validate checks that cfg contains a coherent set of values and fills in
// zero-valued fields with their built-in defaults. It returns a joined error
// listing all hard validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Pool.MaxOpen < 0 {
		errs = append(errs, fmt.Errorf("pool.max_open %d must not be negative", cfg.Pool.MaxOpen))
	}
	if cfg.Pool.MaxOpen == 0 {
		cfg.Pool.MaxOpen = 8
	}
	if cfg.Pool.MaxIdle < 0 {
		errs = append(errs, fmt.Errorf("pool.max_idle %d must not be negative", cfg.Pool.MaxIdle))
	}
	if cfg.Pool.MaxIdle == 0 {
		cfg.Pool.MaxIdle = 4
	}
	if cfg.Pool.MaxIdle > cfg.Pool.MaxOpen {
		slog.Warn("pool.max_idle exceeds pool.max_open; clamping", "max_idle", cfg.Pool.MaxIdle, "max_open", cfg.Pool.MaxOpen)
		cfg.Pool.MaxIdle = cfg.Pool.MaxOpen
	}
	if cfg.Pool.DialMaxFailures < 0 {
		errs = append(errs, fmt.Errorf("pool.dial_max_failures %d must not be negative", cfg.Pool.DialMaxFailures))
	}
	if cfg.Pool.DialResetSeconds < 0 {
		errs = append(errs, fmt.Errorf("pool.dial_reset_seconds %d must not be negative", cfg.Pool.DialResetSeconds))
	}

	if cfg.Vector.DefaultDimensions < 0 {
		errs = append(errs, fmt.Errorf("vector.default_dimensions %d must not be negative", cfg.Vector.DefaultDimensions))
	}
	if cfg.Vector.DefaultDimensions == 0 {
		cfg.Vector.DefaultDimensions = 8
	}

	if cfg.Monitor.SampleIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("monitor.sample_interval_seconds %d must not be negative", cfg.Monitor.SampleIntervalSeconds))
	}
	if cfg.Monitor.SampleIntervalSeconds == 0 {
		cfg.Monitor.SampleIntervalSeconds = 15
	}

	return errors.Join(errs...)
}
