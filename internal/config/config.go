// Package config manages sshcored daemon configuration using koanf/v2.
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

// Config holds the complete sshcored configuration.
type Config struct {
	Control   ControlConfig    `koanf:"control"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Log       LogConfig        `koanf:"log"`
	Transport TransportConfig  `koanf:"transport"`
	Listeners []ListenerConfig `koanf:"listeners"`
}

// ControlConfig holds the control-plane (session-management JSON API plus
// the Connect health endpoint) server configuration.
type ControlConfig struct {
	// Addr is the control-plane listen address (e.g., ":50051").
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

// TransportConfig holds Binary Packet Protocol limits and
// negotiable-algorithm allowlists. Load reads them and Validate checks
// them, but sshcored does not pass them on: the Sessions its listeners
// create use the transport package's built-in limits (wire.MaxPacketLen,
// compress.DefaultMaxInflate) with strict KEX off. Per-session overrides
// are a key-exchange concern, out of this core's scope.
type TransportConfig struct {
	// MaxPacketLen bounds the declared packet_length field; Validate
	// rejects zero.
	MaxPacketLen uint32 `koanf:"max_packet_len"`

	// MaxInflate bounds decompressed output size per packet, guarding
	// against decompression bombs; zero means use
	// compress.DefaultMaxInflate.
	MaxInflate int `koanf:"max_inflate"`

	// AllowedCiphers, AllowedMACs, AllowedCompression restrict which
	// algorithm names the external key-exchange layer may negotiate.
	// Empty means "no restriction beyond what that layer itself offers".
	AllowedCiphers     []string `koanf:"allowed_ciphers"`
	AllowedMACs        []string `koanf:"allowed_macs"`
	AllowedCompression []string `koanf:"allowed_compression"`

	// StrictKEX opts every negotiated session into RFC 9579 strict key
	// exchange when both peers offer it.
	StrictKEX bool `koanf:"strict_kex"`
}

// ListenerConfig describes a declarative listen socket from the
// configuration file. Each entry creates a listening socket on daemon
// startup and is reconciled against the live process on SIGHUP reload.
type ListenerConfig struct {
	// Addr is the TCP address to listen on (e.g., "0.0.0.0:22").
	Addr string `koanf:"addr"`

	// Role is "server" or "client" (a client listener is unusual but
	// valid: an outbound-dialing component that still wants a local
	// Session constructed the same way).
	Role string `koanf:"role"`

	// ReusePort enables SO_REUSEPORT on the listening socket (see
	// internal/netio), letting multiple sshcored processes share one
	// port for zero-downtime restarts.
	ReusePort bool `koanf:"reuse_port"`
}

// ListenerKey returns a unique identifier for the listener based on its
// address. Used for diffing listeners on SIGHUP reload.
func (lc ListenerConfig) ListenerKey() string {
	return lc.Addr
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
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
		Transport: TransportConfig{
			MaxPacketLen: 256 * 1024,
			MaxInflate:   256 * 1024 * 10,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for sshcored configuration.
// Variables are named SSHCORE_<section>_<key>, e.g., SSHCORE_CONTROL_ADDR.
const envPrefix = "SSHCORE_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (SSHCORE_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	SSHCORE_CONTROL_ADDR  -> control.addr
//	SSHCORE_METRICS_ADDR  -> metrics.addr
//	SSHCORE_METRICS_PATH  -> metrics.path
//	SSHCORE_LOG_LEVEL     -> log.level
//	SSHCORE_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// SSHCORE_CONTROL_ADDR -> control.addr (strip prefix, lowercase, _ -> .).
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

// envKeyMapper transforms SSHCORE_CONTROL_ADDR -> control.addr.
// Strips the SSHCORE_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"control.addr":             defaults.Control.Addr,
		"metrics.addr":             defaults.Metrics.Addr,
		"metrics.path":             defaults.Metrics.Path,
		"log.level":                defaults.Log.Level,
		"log.format":               defaults.Log.Format,
		"transport.max_packet_len": defaults.Transport.MaxPacketLen,
		"transport.max_inflate":    defaults.Transport.MaxInflate,
		"transport.strict_kex":     defaults.Transport.StrictKEX,
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

// Validation errors.
var (
	// ErrEmptyControlAddr indicates the control-plane listen address is empty.
	ErrEmptyControlAddr = errors.New("control.addr must not be empty")

	// ErrInvalidMaxPacketLen indicates transport.max_packet_len is zero.
	ErrInvalidMaxPacketLen = errors.New("transport.max_packet_len must be > 0")

	// ErrEmptyListenerAddr indicates a listener has an empty address.
	ErrEmptyListenerAddr = errors.New("listener addr must not be empty")

	// ErrInvalidListenerRole indicates a listener has an unrecognized role.
	ErrInvalidListenerRole = errors.New("listener role must be server or client")

	// ErrDuplicateListenerKey indicates two listeners share the same address.
	ErrDuplicateListenerKey = errors.New("duplicate listener key")
)

// ValidListenerRoles lists the recognized listener role strings.
var ValidListenerRoles = map[string]bool{
	"server": true,
	"client": true,
}

// Validate checks the configuration for logical errors, returning every
// violation found joined via errors.Join rather than stopping at the
// first one, so a misconfigured YAML file is diagnosed in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Control.Addr == "" {
		errs = append(errs, ErrEmptyControlAddr)
	}

	if cfg.Transport.MaxPacketLen == 0 {
		errs = append(errs, ErrInvalidMaxPacketLen)
	}

	if err := validateListeners(cfg.Listeners); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// validateListeners checks each declarative listener entry for correctness.
func validateListeners(listeners []ListenerConfig) error {
	seen := make(map[string]struct{}, len(listeners))
	var errs []error

	for i, lc := range listeners {
		if lc.Addr == "" {
			errs = append(errs, fmt.Errorf("listeners[%d]: %w", i, ErrEmptyListenerAddr))
			continue
		}

		if lc.Role != "" && !ValidListenerRoles[lc.Role] {
			errs = append(errs, fmt.Errorf("listeners[%d] role %q: %w", i, lc.Role, ErrInvalidListenerRole))
		}

		key := lc.ListenerKey()
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("listeners[%d] key %q: %w", i, key, ErrDuplicateListenerKey))
			continue
		}
		seen[key] = struct{}{}
	}

	return errors.Join(errs...)
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
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

// ReloadInterval is the minimum spacing sshcored enforces between two
// SIGHUP-triggered reloads, avoiding a reload storm if an operator sends
// several signals in quick succession.
const ReloadInterval = 2 * time.Second
