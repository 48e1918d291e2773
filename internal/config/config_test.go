package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.Server.Addr != ":8554" || cfg.Server.FrameInterval != 100*time.Millisecond {
		t.Errorf("Unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Client.Window != 30 || cfg.Client.EndGuard != 30 {
		t.Errorf("Unexpected client defaults %+v", cfg.Client)
	}
	if cfg.LogLevel() != log.InfoLevel {
		t.Errorf("Expected info level, got %s", cfg.LogLevel())
	}
}

func TestLoadFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "framecast.yaml")
	content := `
server:
  media: /srv/media
  frame_interval: 40ms
  ports: {min: 6000, max: 6010}
client:
  window: 0
logging:
  level: debug
`
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(filename)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Media != "/srv/media" || cfg.Server.FrameInterval != 40*time.Millisecond {
		t.Errorf("Unexpected server config %+v", cfg.Server)
	}
	if cfg.Server.Ports.Min != 6000 || cfg.Server.Ports.Max != 6010 {
		t.Errorf("Unexpected ports %+v", cfg.Server.Ports)
	}
	// fields the file leaves out keep their defaults
	if cfg.Server.Addr != ":8554" || cfg.Server.MaxPayload != 60000 {
		t.Errorf("Expected defaults to survive, got %+v", cfg.Server)
	}
	if cfg.Client.Window != 0 || cfg.Client.Server != "127.0.0.1:8554" {
		t.Errorf("Unexpected client config %+v", cfg.Client)
	}
	if cfg.LogLevel() != log.DebugLevel {
		t.Errorf("Expected debug level, got %s", cfg.LogLevel())
	}
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("Expected missing file to fail")
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("server: [1, 2"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := Load(broken); err == nil {
		t.Errorf("Expected malformed file to fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"server addr", func(c *Config) { c.Server.Addr = "" }},
		{"frame interval", func(c *Config) { c.Server.FrameInterval = 0 }},
		{"max payload", func(c *Config) { c.Server.MaxPayload = 70000 }},
		{"cache size", func(c *Config) { c.Server.CacheSize = -1 }},
		{"server bind attempts", func(c *Config) { c.Server.BindAttempts = 0 }},
		{"client server", func(c *Config) { c.Client.Server = "" }},
		{"end guard", func(c *Config) { c.Client.EndGuard = -1 }},
		{"client bind attempts", func(c *Config) { c.Client.BindAttempts = 0 }},
		{"inverted ports", func(c *Config) { c.Server.Ports.Min, c.Server.Ports.Max = 10, 5 }},
		{"port too large", func(c *Config) { c.Client.Ports.Max = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Expected defaults to be valid, got %v", err)
	}
}
