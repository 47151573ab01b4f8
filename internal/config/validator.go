package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validatePanel(&cfg.Panel, result)
	validateListeners(cfg, result)
	validateIntegrations(cfg, result)

	return result
}

func validatePanel(p *PanelConfig, result *ValidationResult) {
	if strings.TrimSpace(p.Host) == "" {
		result.AddError("panel.host", "panel host is required")
	}

	validatePort(p.Port, "panel.port", result)

	if p.CommandTimeoutSec < 1 {
		result.AddError("panel.command_timeout_sec", "command timeout must be at least 1 second")
	}
	if p.CommandTimeoutSec > 30 {
		result.AddWarning("panel.command_timeout_sec",
			fmt.Sprintf("timeout of %d seconds is unusually long for a LAN panel", p.CommandTimeoutSec))
	}
	if p.CommandRetries < 0 {
		result.AddError("panel.command_retries", "retry count cannot be negative")
	}
}

func validateListeners(cfg *Config, result *ValidationResult) {
	if cfg.Notifications.Enabled {
		validateBindAddr(cfg.Notifications.Bind, "notifications.bind", result)
	}

	if cfg.CloudRelay.Enabled {
		validateBindAddr(cfg.CloudRelay.Bind, "cloud_relay.bind", result)

		// Upstream host and port come as a pair in chained mode.
		if cfg.CloudRelay.UpstreamHost != "" {
			validatePort(cfg.CloudRelay.UpstreamPort, "cloud_relay.upstream_port", result)
		} else if cfg.CloudRelay.UpstreamPort != 0 {
			result.AddWarning("cloud_relay.upstream_host",
				"upstream_port is set but upstream_host is empty, relay will run standalone")
		}
	}

	if cfg.History.Enabled && cfg.History.PollIntervalSec < 5 {
		result.AddWarning("history.poll_interval_sec",
			"polling faster than every 5 seconds puts sustained load on the panel")
	}

	if strings.TrimSpace(cfg.Journal.Path) == "" {
		result.AddError("journal.path", "journal database path is required")
	}
	if cfg.Journal.RetentionDays < 0 {
		result.AddError("journal.retention_days", "retention cannot be negative")
	}
}

func validateIntegrations(cfg *Config, result *ValidationResult) {
	if cfg.MQTT.Enabled {
		if strings.TrimSpace(cfg.MQTT.BrokerURL) == "" {
			result.AddError("mqtt.broker_url", "broker URL is required when MQTT is enabled")
		}
		validatePort(cfg.MQTT.Port, "mqtt.port", result)
		if (cfg.MQTT.CertFile == "") != (cfg.MQTT.KeyFile == "") {
			result.AddError("mqtt.cert_file", "cert_file and key_file must be set together")
		}
	}

	if cfg.API.Enabled {
		validatePort(cfg.API.Port, "api.port", result)
		if cfg.API.RateLimitRPS < 0 {
			result.AddError("api.rate_limit_rps", "rate limit cannot be negative")
		}
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port %d, must be 1-65535", port))
	}
}

func validateBindAddr(addr, field string, result *ValidationResult) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		result.AddError(field, fmt.Sprintf("invalid bind address %q: %v", addr, err))
		return
	}
	if host != "" && net.ParseIP(host) == nil {
		result.AddError(field, fmt.Sprintf("bind host %q is not an IP address", host))
	}
	if port == "" {
		result.AddError(field, "bind address is missing a port")
	}
}
