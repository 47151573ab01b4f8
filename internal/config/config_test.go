package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Panel.Port != DefaultPanelPort {
		t.Errorf("panel port = %d, want %d", cfg.Panel.Port, DefaultPanelPort)
	}
	if !cfg.Notifications.Enabled {
		t.Error("notifications should be enabled by default")
	}
	if cfg.CloudRelay.Enabled {
		t.Error("cloud relay should be disabled by default")
	}

	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Errorf("default config file not written: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()

	// A partial file: only panel.host present. Everything else must keep
	// its default.
	partial := `{"panel": {"host": "10.0.0.20"}}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Panel.Host != "10.0.0.20" {
		t.Errorf("panel host = %q, want 10.0.0.20", cfg.Panel.Host)
	}
	if cfg.History.PollIntervalSec != 30 {
		t.Errorf("poll interval = %d, want default 30", cfg.History.PollIntervalSec)
	}
	if cfg.API.Port != DefaultAPIPort {
		t.Errorf("api port = %d, want default %d", cfg.API.Port, DefaultAPIPort)
	}
}

func TestLoadBadJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{nope"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("Load should fail on malformed JSON")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	panel := cfg.GetPanel()
	panel.Host = "192.168.1.55"
	panel.CommandRetries = 4
	cfg.SetPanel(panel)

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.GetPanel(); got.Host != "192.168.1.55" || got.CommandRetries != 4 {
		t.Errorf("reloaded panel = %+v", got)
	}
}

func TestUpdatePanelField(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.UpdatePanelField("host", "10.1.1.1"); err != nil {
		t.Fatalf("UpdatePanelField: %v", err)
	}
	if cfg.GetPanel().Host != "10.1.1.1" {
		t.Errorf("host = %q, want 10.1.1.1", cfg.GetPanel().Host)
	}

	// Numeric fields arrive as JSON numbers.
	if err := cfg.UpdatePanelField("command_retries", json.Number("5")); err != nil {
		t.Fatalf("UpdatePanelField: %v", err)
	}
	if cfg.GetPanel().CommandRetries != 5 {
		t.Errorf("retries = %d, want 5", cfg.GetPanel().CommandRetries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		valid   bool
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) { c.Panel.Host = "192.168.1.10" },
			valid:  true,
		},
		{
			name:   "missing panel host",
			mutate: func(c *Config) {},
			valid:  false,
		},
		{
			name: "bad panel port",
			mutate: func(c *Config) {
				c.Panel.Host = "192.168.1.10"
				c.Panel.Port = 70000
			},
			valid: false,
		},
		{
			name: "zero command timeout",
			mutate: func(c *Config) {
				c.Panel.Host = "192.168.1.10"
				c.Panel.CommandTimeoutSec = 0
			},
			valid: false,
		},
		{
			name: "bad notification bind",
			mutate: func(c *Config) {
				c.Panel.Host = "192.168.1.10"
				c.Notifications.Bind = "not-an-addr"
			},
			valid: false,
		},
		{
			name: "negative journal retention",
			mutate: func(c *Config) {
				c.Panel.Host = "192.168.1.10"
				c.Journal.RetentionDays = -1
			},
			valid: false,
		},
		{
			name: "mqtt enabled without broker",
			mutate: func(c *Config) {
				c.Panel.Host = "192.168.1.10"
				c.MQTT.Enabled = true
			},
			valid: false,
		},
		{
			name: "chained relay needs upstream port",
			mutate: func(c *Config) {
				c.Panel.Host = "192.168.1.10"
				c.CloudRelay.Enabled = true
				c.CloudRelay.UpstreamHost = "47.88.7.61"
				c.CloudRelay.UpstreamPort = 0
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			result := Validate(cfg)
			if result.IsValid() != tt.valid {
				t.Errorf("IsValid() = %v, want %v (errors: %v)", result.IsValid(), tt.valid, result.Errors)
			}
		})
	}
}

func TestIsFirstRun(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsFirstRun() {
		t.Error("empty host should report first run")
	}
	cfg.Panel.Host = "192.168.1.10"
	if cfg.IsFirstRun() {
		t.Error("configured host should not report first run")
	}
}
