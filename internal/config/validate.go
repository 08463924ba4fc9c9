package config

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

var validNetworks = map[string]bool{"tcp": true, "udp": true}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var validBackupProviders = map[string]bool{
	"": true, "local": true, "s3": true, "azblob": true, "gcs": true, "b2": true,
}

// ValidationResult separates fatal problems (block startup) from warnings
// (logged, then corrected in place with a safe default).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal error was recorded.
func (r ValidationResult) HasFatals() bool { return len(r.Fatals) > 0 }

// AllErrors returns fatals followed by warnings, for callers that just
// want to log everything found.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. A missing or
// malformed device address, a missing user, control characters in the
// password, an unknown backup provider, and an enabled non-local backup
// without a bucket are fatal; everything else is a warning whose field
// gets clamped to a safe value in place.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.DeviceAddress == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("device_address is required"))
	} else if _, _, err := net.SplitHostPort(c.DeviceAddress); err != nil {
		result.Fatals = append(result.Fatals, fmt.Errorf("device_address %q must be host:port: %w", c.DeviceAddress, err))
	}

	if c.DeviceUser == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("device_user is required"))
	}

	for _, r := range c.DevicePassword {
		if unicode.IsControl(r) {
			result.Fatals = append(result.Fatals, fmt.Errorf("device_password contains control characters"))
			break
		}
	}

	if c.Network != "" && !validNetworks[strings.ToLower(c.Network)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("network %q is not valid, defaulting to tcp", c.Network))
		c.Network = "tcp"
	}

	if c.ConnectTimeoutSeconds < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("connect_timeout_seconds %d is below minimum 1, clamping", c.ConnectTimeoutSeconds))
		c.ConnectTimeoutSeconds = 1
	} else if c.ConnectTimeoutSeconds > 120 {
		result.Warnings = append(result.Warnings, fmt.Errorf("connect_timeout_seconds %d exceeds maximum 120, clamping", c.ConnectTimeoutSeconds))
		c.ConnectTimeoutSeconds = 120
	}

	if c.RequestTimeoutSeconds < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("request_timeout_seconds %d is below minimum 1, clamping", c.RequestTimeoutSeconds))
		c.RequestTimeoutSeconds = 1
	} else if c.RequestTimeoutSeconds > 300 {
		result.Warnings = append(result.Warnings, fmt.Errorf("request_timeout_seconds %d exceeds maximum 300, clamping", c.RequestTimeoutSeconds))
		c.RequestTimeoutSeconds = 300
	}

	if c.KeepAliveOverrideSecs < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("keep_alive_override_seconds %d cannot be negative, clamping to 0", c.KeepAliveOverrideSecs))
		c.KeepAliveOverrideSecs = 0
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	if !validBackupProviders[strings.ToLower(c.BackupProvider)] {
		result.Fatals = append(result.Fatals, fmt.Errorf("backup_provider %q is not one of local/s3/azblob/gcs/b2", c.BackupProvider))
	}

	if c.BackupEnabled && c.BackupProvider != "local" && c.BackupBucket == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("backup_bucket is required for backup_provider %q", c.BackupProvider))
	}

	return result
}
