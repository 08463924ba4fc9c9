package config

import (
	"fmt"
	"testing"
)

func validCfg() *Config {
	cfg := Default()
	cfg.DeviceAddress = "192.168.1.10:34567"
	cfg.DeviceUser = "admin"
	cfg.DevicePassword = "clean-password"
	return cfg
}

func TestValidateTieredMissingDeviceAddressIsFatal(t *testing.T) {
	cfg := validCfg()
	cfg.DeviceAddress = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("missing device_address should be fatal")
	}
}

func TestValidateTieredMalformedDeviceAddressIsFatal(t *testing.T) {
	cfg := validCfg()
	cfg.DeviceAddress = "not-a-host-port"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("malformed device_address should be fatal")
	}
}

func TestValidateTieredMissingUserIsFatal(t *testing.T) {
	cfg := validCfg()
	cfg.DeviceUser = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("missing device_user should be fatal")
	}
}

func TestValidateTieredControlCharsInPasswordIsFatal(t *testing.T) {
	cfg := validCfg()
	cfg.DevicePassword = "pw\x00with\x01control"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("control chars in device_password should be fatal")
	}
}

func TestValidateTieredUnknownNetworkIsWarning(t *testing.T) {
	cfg := validCfg()
	cfg.Network = "sctp"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("unknown network should not be fatal: %v", result.Fatals)
	}
	if cfg.Network != "tcp" {
		t.Fatalf("Network = %q, want tcp (defaulted)", cfg.Network)
	}
}

func TestValidateTieredConnectTimeoutClamping(t *testing.T) {
	cfg := validCfg()
	cfg.ConnectTimeoutSeconds = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped connect timeout should be warning: %v", result.Fatals)
	}
	if cfg.ConnectTimeoutSeconds != 1 {
		t.Fatalf("ConnectTimeoutSeconds = %d, want 1", cfg.ConnectTimeoutSeconds)
	}

	cfg.ConnectTimeoutSeconds = 99999
	cfg.ValidateTiered()
	if cfg.ConnectTimeoutSeconds != 120 {
		t.Fatalf("ConnectTimeoutSeconds = %d, want 120", cfg.ConnectTimeoutSeconds)
	}
}

func TestValidateTieredRequestTimeoutClamping(t *testing.T) {
	cfg := validCfg()
	cfg.RequestTimeoutSeconds = -1
	cfg.ValidateTiered()
	if cfg.RequestTimeoutSeconds != 1 {
		t.Fatalf("RequestTimeoutSeconds = %d, want 1", cfg.RequestTimeoutSeconds)
	}
}

func TestValidateTieredNegativeKeepAliveOverrideClamped(t *testing.T) {
	cfg := validCfg()
	cfg.KeepAliveOverrideSecs = -5
	cfg.ValidateTiered()
	if cfg.KeepAliveOverrideSecs != 0 {
		t.Fatalf("KeepAliveOverrideSecs = %d, want 0", cfg.KeepAliveOverrideSecs)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := validCfg()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info (defaulted)", cfg.LogLevel)
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := validCfg()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestValidateTieredUnknownBackupProviderIsFatal(t *testing.T) {
	cfg := validCfg()
	cfg.BackupProvider = "dropbox"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("unknown backup provider should be fatal")
	}
}

func TestValidateTieredBackupEnabledWithoutBucketIsFatal(t *testing.T) {
	cfg := validCfg()
	cfg.BackupEnabled = true
	cfg.BackupProvider = "s3"
	cfg.BackupBucket = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("enabling a cloud backup provider without a bucket should be fatal")
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := validCfg()
	cfg.DeviceAddress = "bad"    // fatal
	cfg.LogLevel = "nonsense" // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := validCfg()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid config has warnings: %v", result.Warnings)
	}
}
