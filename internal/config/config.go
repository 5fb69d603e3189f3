// Package config manages i2ptunneld daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete i2ptunneld configuration.
type Config struct {
	GRPC    GRPCConfig    `koanf:"grpc"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Tunnel  TunnelConfig  `koanf:"tunnel"`
}

// GRPCConfig holds the ConnectRPC health-check server configuration.
type GRPCConfig struct {
	// Addr is the listen address for the health/admin server (e.g., ":50051").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// TunnelConfig holds the tunnel datapath's tunable parameters. None of
// these affect wire compatibility — the record and fragment layouts are
// fixed constants in internal/tunnel — they only tune local resource
// bounds and housekeeping cadence.
type TunnelConfig struct {
	// ReassemblyTimeout bounds how long an Endpoint Reassembler holds an
	// incomplete message before dropping it.
	ReassemblyTimeout time.Duration `koanf:"reassembly_timeout"`

	// ExpirySweepInterval is how often the housekeeping goroutine runs; each
	// tick flushes gateways, sweeps reassembly slots, and expires tunnels.
	ExpirySweepInterval time.Duration `koanf:"expiry_sweep_interval"`

	// MaxDatagramSize bounds the ungzipped size of an inbound datagram.
	MaxDatagramSize int `koanf:"max_datagram_size"`

	// TunnelLifetime is how long a transit tunnel is considered active
	// after its creation time before it is eligible for expiry.
	TunnelLifetime time.Duration `koanf:"tunnel_lifetime"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GRPC: GRPCConfig{
			Addr: ":50051",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tunnel: TunnelConfig{
			ReassemblyTimeout:   10 * time.Second,
			ExpirySweepInterval: 5 * time.Second,
			MaxDatagramSize:     32 * 1024,
			TunnelLifetime:      10 * time.Minute,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for i2ptunneld configuration.
// Variables are named I2PTUNNEL_<section>_<key>, e.g., I2PTUNNEL_GRPC_ADDR.
const envPrefix = "I2PTUNNEL_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (I2PTUNNEL_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	I2PTUNNEL_GRPC_ADDR     -> grpc.addr
//	I2PTUNNEL_METRICS_ADDR  -> metrics.addr
//	I2PTUNNEL_METRICS_PATH  -> metrics.path
//	I2PTUNNEL_LOG_LEVEL     -> log.level
//	I2PTUNNEL_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms I2PTUNNEL_GRPC_ADDR -> grpc.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"grpc.addr":                    defaults.GRPC.Addr,
		"metrics.addr":                 defaults.Metrics.Addr,
		"metrics.path":                 defaults.Metrics.Path,
		"log.level":                    defaults.Log.Level,
		"log.format":                   defaults.Log.Format,
		"tunnel.reassembly_timeout":    defaults.Tunnel.ReassemblyTimeout.String(),
		"tunnel.expiry_sweep_interval": defaults.Tunnel.ExpirySweepInterval.String(),
		"tunnel.max_datagram_size":     defaults.Tunnel.MaxDatagramSize,
		"tunnel.tunnel_lifetime":       defaults.Tunnel.TunnelLifetime.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

var (
	ErrEmptyGRPCAddr          = errors.New("grpc.addr must not be empty")
	ErrInvalidReassemblyTimeout = errors.New("tunnel.reassembly_timeout must be > 0")
	ErrInvalidSweepInterval   = errors.New("tunnel.expiry_sweep_interval must be > 0")
	ErrInvalidMaxDatagramSize = errors.New("tunnel.max_datagram_size must be > 0")
	ErrInvalidTunnelLifetime  = errors.New("tunnel.tunnel_lifetime must be > 0")
)

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if cfg.GRPC.Addr == "" {
		return ErrEmptyGRPCAddr
	}
	if cfg.Tunnel.ReassemblyTimeout <= 0 {
		return ErrInvalidReassemblyTimeout
	}
	if cfg.Tunnel.ExpirySweepInterval <= 0 {
		return ErrInvalidSweepInterval
	}
	if cfg.Tunnel.MaxDatagramSize <= 0 {
		return ErrInvalidMaxDatagramSize
	}
	if cfg.Tunnel.TunnelLifetime <= 0 {
		return ErrInvalidTunnelLifetime
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
