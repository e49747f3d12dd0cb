package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/loader"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("poll interval = %s", cfg.PollInterval)
	}
	if got := cfg.Location().Path(); got != filepath.Join("build", "counter.wasm") {
		t.Errorf("path = %s", got)
	}
}

func TestDecode_Overlay(t *testing.T) {
	cfg := Default()
	err := Decode(&cfg, `
dir = " target "
profile = "release"
poll_interval = "250ms"
call_timeout = "2s"
read_attempts = 9
headless = true
`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Dir != "target" || cfg.Profile != loader.ProfileRelease {
		t.Errorf("location = %+v", cfg.Location())
	}
	if cfg.Name != "counter" {
		t.Errorf("undefined key changed: name = %q", cfg.Name)
	}
	if cfg.PollInterval != 250*time.Millisecond || cfg.CallTimeout != 2*time.Second {
		t.Errorf("durations = %s, %s", cfg.PollInterval, cfg.CallTimeout)
	}
	if cfg.ReadAttempts != 9 || !cfg.Headless {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LoadTimeout != loader.DefaultLoadTimeout {
		t.Errorf("load timeout = %s", cfg.LoadTimeout)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"syntax", `dir = `},
		{"duration", `poll_interval = "soon"`},
		{"unknown key", `dir = "x"` + "\nwatch = true"},
		{"type", `read_attempts = "many"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := Decode(&cfg, tt.toml)
			if errors.KindOf(err) != errors.KindInvalidInput {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotswap.toml")
	if err := os.WriteFile(path, []byte("name = \"app\"\nsettle_delay = \"10ms\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	if err := LoadFile(&cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Name != "app" || cfg.SettleDelay != 10*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}

	if err := LoadFile(&cfg, filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Dir = "from-file"
	err := ApplyEnv(&cfg, map[string]string{
		"HOTSWAP_NAME":          "unit",
		"HOTSWAP_POLL_INTERVAL": "100ms",
		"HOTSWAP_HEADLESS":      "true",
		"HOTSWAP_READ_ATTEMPTS": "3",
		"NAME":                  "ignored",
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Name != "unit" || cfg.PollInterval != 100*time.Millisecond || !cfg.Headless || cfg.ReadAttempts != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Dir != "from-file" {
		t.Fatalf("unset variable overwrote dir: %q", cfg.Dir)
	}

	if err := ApplyEnv(&cfg, map[string]string{"HOTSWAP_CALL_TIMEOUT": "later"}); errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("bad duration: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
		{"zero load timeout", func(c *Config) { c.LoadTimeout = 0 }},
		{"negative call timeout", func(c *Config) { c.CallTimeout = -time.Second }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate accepted invalid config")
			}
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.CallTimeout = time.Second
	cfg.CacheDir = "/tmp/cache"

	if o := cfg.LoaderOptions(nil); o.CallTimeout != time.Second || o.ReadAttempts != loader.DefaultReadAttempts {
		t.Errorf("loader options = %+v", o)
	}
	if o := cfg.HostOptions(nil); o.PollInterval != cfg.PollInterval {
		t.Errorf("host options = %+v", o)
	}
	if e := cfg.EngineConfig(); e.CacheDir != "/tmp/cache" {
		t.Errorf("engine config = %+v", e)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Default()

	l, err := NewLogger(cfg, true)
	if err != nil || l.Core().Enabled(0) {
		t.Fatalf("tui logger without file should be disabled: %v", err)
	}

	cfg.LogFile = filepath.Join(t.TempDir(), "hotswap.log")
	cfg.LogLevel = "debug"
	l, err = NewLogger(cfg, true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Info("hello")
	l.Sync()
	data, err := os.ReadFile(cfg.LogFile)
	if err != nil || len(data) == 0 {
		t.Fatalf("log file empty: %v", err)
	}

	cfg.LogLevel = "loud"
	if _, err := NewLogger(cfg, false); err == nil {
		t.Fatal("bad level accepted")
	}
}
