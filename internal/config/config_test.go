package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestConfig(values map[string]any) *ViperConfig {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return New(v)
}

func TestGetters(t *testing.T) {
	cfg := newTestConfig(map[string]any{
		"live.allowed_origins": "example.com",
		"live.send_buffer":     64,
		"pulse.enabled":        true,
		"live.write_timeout":   "750ms",
	})

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", cfg.GetString("live.allowed_origins"), "example.com"},
		{"int", cfg.GetInt("live.send_buffer"), 64},
		{"bool", cfg.GetBool("pulse.enabled"), true},
		{"duration", cfg.GetDuration("live.write_timeout"), 750 * time.Millisecond},
		{"set", cfg.IsSet("live.send_buffer"), true},
		{"unset", cfg.IsSet("live.missing"), false},
		{"missing string", cfg.GetString("nope"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestSub(t *testing.T) {
	cfg := newTestConfig(map[string]any{
		"plugins.pulse.max_concurrent_checks": 16,
		"plugins.pulse.min_interval":          "5s",
	})

	pulse := cfg.Sub("plugins.pulse")
	if got := pulse.GetInt("max_concurrent_checks"); got != 16 {
		t.Errorf("max_concurrent_checks = %d, want 16", got)
	}
	if got := pulse.GetDuration("min_interval"); got != 5*time.Second {
		t.Errorf("min_interval = %v, want 5s", got)
	}

	empty := cfg.Sub("plugins.live")
	if empty == nil {
		t.Fatal("Sub of a missing subtree returned nil")
	}
	if empty.IsSet("send_buffer") || empty.GetInt("send_buffer") != 0 {
		t.Error("missing subtree is not empty")
	}
	if empty.Sub("deeper") == nil {
		t.Error("nested Sub of an empty config returned nil")
	}
}

func TestUnmarshal(t *testing.T) {
	cfg := newTestConfig(map[string]any{"host": "127.0.0.1", "port": 9090})

	var server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	}
	if err := cfg.Unmarshal(&server); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if server.Host != "127.0.0.1" || server.Port != 9090 {
		t.Errorf("Unmarshal() = %+v", server)
	}
}

func TestNew_NilViperIsEmpty(t *testing.T) {
	cfg := New(nil)
	if cfg.Viper() == nil {
		t.Fatal("Viper() = nil")
	}
	if cfg.IsSet("server.port") {
		t.Error("nil viper reports keys as set")
	}
}

func TestLoad(t *testing.T) {
	writeFile := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "netwatch.yaml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		return path
	}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := cfg.GetInt("server.port"); got != 8080 {
			t.Errorf("server.port = %d, want 8080", got)
		}
		if got := cfg.GetDuration("plugins.pulse.min_interval"); got != 10*time.Second {
			t.Errorf("min_interval = %v, want 10s", got)
		}
		if !cfg.GetBool("plugins.live.enabled") {
			t.Error("live disabled by default")
		}
	})

	t.Run("file overrides keep other defaults", func(t *testing.T) {
		cfg, err := Load(writeFile(t, "server:\n  port: 9191\nplugins:\n  pulse:\n    max_concurrent_checks: 8\n"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := cfg.GetInt("server.port"); got != 9191 {
			t.Errorf("server.port = %d, want 9191", got)
		}
		if got := cfg.Sub("plugins.pulse").GetInt("max_concurrent_checks"); got != 8 {
			t.Errorf("max_concurrent_checks = %d, want 8", got)
		}
		if got := cfg.GetString("database.path"); got != "netwatch.db" {
			t.Errorf("database.path = %q, want netwatch.db", got)
		}
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("NETWATCH_SERVER_PORT", "7070")
		cfg, err := Load(writeFile(t, "server:\n  port: 9191\n"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := cfg.GetInt("server.port"); got != 7070 {
			t.Errorf("server.port = %d, want 7070", got)
		}
	})

	t.Run("explicit missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Fatal("Load() = nil error, want error")
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		if _, err := Load(writeFile(t, "server: [port\n")); err == nil {
			t.Fatal("Load() = nil error, want error")
		}
	})
}
