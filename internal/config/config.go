// Package config provides the configuration schema, loader, and validation
// for the grizabella engine.
package config

import "log/slog"

// LogLevel controls verbosity of the process logger.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the known log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// SlogLevel maps l to its slog.Level equivalent, defaulting to LevelInfo.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for the grizabella engine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Pool    PoolConfig    `yaml:"pool"`
	Vector  VectorConfig  `yaml:"vector"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ServerConfig holds process-wide logging and listen settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server (RPC dispatcher plus the
	// Prometheus /metrics endpoint) listens on (e.g., ":9090"). Empty
	// disables the network surface entirely.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// PoolConfig tunes the connection pool shared by every substrate adapter.
type PoolConfig struct {
	// MaxOpen caps concurrently open connections per substrate. Zero means
	// a built-in default (8) is used.
	MaxOpen int `yaml:"max_open"`

	// MaxIdle caps idle connections kept warm per substrate.
	MaxIdle int `yaml:"max_idle"`

	// IdleTimeoutSeconds closes idle connections older than this many seconds.
	// Zero disables idle eviction.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`

	// DialMaxFailures is how many consecutive failed dials trip a
	// substrate's dial gate. Zero means the gate's built-in default (5).
	DialMaxFailures int `yaml:"dial_max_failures"`

	// DialResetSeconds is the dial gate's base backoff window before it
	// probes a tripped substrate again; successive trips double it. Zero
	// means the gate's built-in default (30s).
	DialResetSeconds int `yaml:"dial_reset_seconds"`
}

// VectorConfig configures the default embedding model and similarity metric
// used when an EmbeddingDefinition does not override them.
type VectorConfig struct {
	// DefaultModel names the embedding model used when an EmbeddingDefinition
	// does not specify one. Empty selects the built-in deterministic stub model.
	DefaultModel string `yaml:"default_model"`

	// DefaultDimensions is the vector width produced by DefaultModel.
	DefaultDimensions int `yaml:"default_dimensions"`
}

// MonitorConfig tunes the Resource Monitor's sampling cadence.
type MonitorConfig struct {
	// SampleIntervalSeconds is how often pool and memory statistics are
	// sampled into the metrics exporter. Zero means a built-in default (15s).
	SampleIntervalSeconds int `yaml:"sample_interval_seconds"`
}
