// Package config handles configuration loading, validation, and persistence
// for PanelGuard.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir   = "config"
	DefaultConfigFile  = "config.json"
	DefaultPanelPort   = 12368
	DefaultNotifyPort  = 12901
	DefaultCloudPort   = 5678
	DefaultAPIPort     = 8590
)

// Config is the root configuration structure for PanelGuard.
type Config struct {
	mu   sync.RWMutex
	path string

	Panel         PanelConfig         `json:"panel"`
	Notifications NotificationsConfig `json:"notifications"`
	CloudRelay    CloudRelayConfig    `json:"cloud_relay"`
	History       HistoryConfig       `json:"history"`
	Journal       JournalConfig       `json:"journal"`
	MQTT          MQTTConfig          `json:"mqtt"`
	API           APIConfig           `json:"api"`
	Logging       LoggingConfig       `json:"logging"`
}

// PanelConfig describes how to reach the alarm panel on the local network.
type PanelConfig struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	CommandTimeoutSec int    `json:"command_timeout_sec"`
	CommandRetries    int    `json:"command_retries"`
}

// NotificationsConfig controls the UDP notification listener.
type NotificationsConfig struct {
	Enabled bool   `json:"enabled"`
	Bind    string `json:"bind"`
	// FilterPanelHost restricts accepted datagrams to the configured panel host.
	FilterPanelHost bool `json:"filter_panel_host"`
}

// CloudRelayConfig controls the TCP cloud relay server.
type CloudRelayConfig struct {
	Enabled      bool   `json:"enabled"`
	Bind         string `json:"bind"`
	UpstreamHost string `json:"upstream_host"`
	UpstreamPort int    `json:"upstream_port"`
}

// HistoryConfig controls the history polling fallback.
type HistoryConfig struct {
	Enabled         bool `json:"enabled"`
	PollIntervalSec int  `json:"poll_interval_sec"`
}

// JournalConfig controls the SQLite event journal.
type JournalConfig struct {
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	ClientID  string `json:"client_id"`
}

// APIConfig holds the REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Panel: PanelConfig{
			Port:              DefaultPanelPort,
			CommandTimeoutSec: 3,
			CommandRetries:    2,
		},
		Notifications: NotificationsConfig{
			Enabled:         true,
			Bind:            fmt.Sprintf("0.0.0.0:%d", DefaultNotifyPort),
			FilterPanelHost: true,
		},
		CloudRelay: CloudRelayConfig{
			Enabled: false,
			Bind:    fmt.Sprintf("0.0.0.0:%d", DefaultCloudPort),
		},
		History: HistoryConfig{
			Enabled:         false,
			PollIntervalSec: 30,
		},
		Journal: JournalConfig{
			Path:          "config/events.db",
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Port:    8883,
			UseTLS:  true,
		},
		API: APIConfig{
			Enabled:      true,
			Port:         DefaultAPIPort,
			RateLimitRPS: 100,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
		},
	}
}

// Load reads configuration from a JSON file, creating the default file when
// none exists yet.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetPanel returns a copy of the panel configuration.
func (c *Config) GetPanel() PanelConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Panel
}

// SetPanel updates the panel configuration.
func (c *Config) SetPanel(p PanelConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Panel = p
}

// UpdatePanelField updates a single field in the panel section by its JSON key.
func (c *Config) UpdatePanelField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.Panel)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.Panel); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Panel.Host == ""
}
