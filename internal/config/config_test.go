package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sshcore/transport/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Control.Addr != ":50051" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, ":50051")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Transport.MaxPacketLen != 256*1024 {
		t.Errorf("Transport.MaxPacketLen = %d, want %d", cfg.Transport.MaxPacketLen, 256*1024)
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
control:
  addr: ":60000"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
transport:
  max_packet_len: 131072
  max_inflate: 1048576
  strict_kex: true
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Control.Addr != ":60000" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, ":60000")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Transport.MaxPacketLen != 131072 {
		t.Errorf("Transport.MaxPacketLen = %d, want %d", cfg.Transport.MaxPacketLen, 131072)
	}

	if cfg.Transport.MaxInflate != 1048576 {
		t.Errorf("Transport.MaxInflate = %d, want %d", cfg.Transport.MaxInflate, 1048576)
	}

	if !cfg.Transport.StrictKEX {
		t.Error("Transport.StrictKEX = false, want true")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override control.addr and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
control:
  addr: ":55555"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Control.Addr != ":55555" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Transport.MaxPacketLen != 256*1024 {
		t.Errorf("Transport.MaxPacketLen = %d, want default %d", cfg.Transport.MaxPacketLen, 256*1024)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty control addr",
			modify: func(cfg *config.Config) {
				cfg.Control.Addr = ""
			},
			wantErr: config.ErrEmptyControlAddr,
		},
		{
			name: "zero max packet len",
			modify: func(cfg *config.Config) {
				cfg.Transport.MaxPacketLen = 0
			},
			wantErr: config.ErrInvalidMaxPacketLen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJoinsMultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Control.Addr = ""
	cfg.Transport.MaxPacketLen = 0

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate() returned nil, want joined error")
	}
	if !errors.Is(err, config.ErrEmptyControlAddr) {
		t.Errorf("joined error missing ErrEmptyControlAddr: %v", err)
	}
	if !errors.Is(err, config.ErrInvalidMaxPacketLen) {
		t.Errorf("joined error missing ErrInvalidMaxPacketLen: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// -------------------------------------------------------------------------
// Listener Config Tests
// -------------------------------------------------------------------------

func TestLoadWithListeners(t *testing.T) {
	t.Parallel()

	yamlContent := `
control:
  addr: ":50051"
listeners:
  - addr: "0.0.0.0:2022"
    role: server
    reuse_port: true
  - addr: "0.0.0.0:2023"
    role: server
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if len(cfg.Listeners) != 2 {
		t.Fatalf("Listeners count = %d, want 2", len(cfg.Listeners))
	}

	l1 := cfg.Listeners[0]
	if l1.Addr != "0.0.0.0:2022" {
		t.Errorf("Listeners[0].Addr = %q, want %q", l1.Addr, "0.0.0.0:2022")
	}
	if l1.Role != "server" {
		t.Errorf("Listeners[0].Role = %q, want %q", l1.Role, "server")
	}
	if !l1.ReusePort {
		t.Error("Listeners[0].ReusePort = false, want true")
	}

	l2 := cfg.Listeners[1]
	if l2.Addr != "0.0.0.0:2023" {
		t.Errorf("Listeners[1].Addr = %q, want %q", l2.Addr, "0.0.0.0:2023")
	}

	if l1.ListenerKey() == l2.ListenerKey() {
		t.Error("Listeners[0] and Listeners[1] have the same key, expected different")
	}
}

func TestValidateListenerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty listener addr",
			modify: func(cfg *config.Config) {
				cfg.Listeners = []config.ListenerConfig{{Addr: ""}}
			},
			wantErr: config.ErrEmptyListenerAddr,
		},
		{
			name: "invalid listener role",
			modify: func(cfg *config.Config) {
				cfg.Listeners = []config.ListenerConfig{{Addr: "0.0.0.0:2022", Role: "bogus"}}
			},
			wantErr: config.ErrInvalidListenerRole,
		},
		{
			name: "duplicate listener keys",
			modify: func(cfg *config.Config) {
				cfg.Listeners = []config.ListenerConfig{
					{Addr: "0.0.0.0:2022"},
					{Addr: "0.0.0.0:2022"},
				}
			},
			wantErr: config.ErrDuplicateListenerKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateListenerValidRoles(t *testing.T) {
	t.Parallel()

	for _, role := range []string{"server", "client", ""} {
		cfg := config.DefaultConfig()
		cfg.Listeners = []config.ListenerConfig{{Addr: "0.0.0.0:2022", Role: role}}

		if err := config.Validate(cfg); err != nil {
			t.Errorf("Validate() with role %q returned error: %v", role, err)
		}
	}
}

func TestListenerConfigKey(t *testing.T) {
	t.Parallel()

	lc := config.ListenerConfig{Addr: "0.0.0.0:2022"}

	want := "0.0.0.0:2022"
	if got := lc.ListenerKey(); got != want {
		t.Errorf("ListenerKey() = %q, want %q", got, want)
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
control:
  addr: ":50051"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	// Set env overrides.
	t.Setenv("SSHCORE_CONTROL_ADDR", ":60000")
	t.Setenv("SSHCORE_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Control.Addr != ":60000" {
		t.Errorf("Control.Addr = %q, want %q (from env)", cfg.Control.Addr, ":60000")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
control:
  addr: ":50051"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("SSHCORE_METRICS_ADDR", ":9200")
	t.Setenv("SSHCORE_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "sshcored.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
