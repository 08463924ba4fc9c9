// Package config loads the client-facing profile consumed by cmd/dvrip-cli
// and cmd/dvrip-bridge: device address/credentials, timeouts, and the
// optional sink/bridge destinations. The core dvrip.Client is always
// constructed programmatically and never reads this package directly.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config is the on-disk/environment profile for the CLI and bridge
// commands built on top of pkg/dvrip.
type Config struct {
	DeviceAddress  string `mapstructure:"device_address"`
	DeviceUser     string `mapstructure:"device_user"`
	DevicePassword string `mapstructure:"device_password"`
	Network        string `mapstructure:"network"` // "tcp" or "udp"
	Interface      string `mapstructure:"interface"`

	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	KeepAliveOverrideSecs int `mapstructure:"keep_alive_override_seconds"`

	DownloadDir string `mapstructure:"download_dir"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	BackupEnabled  bool   `mapstructure:"backup_enabled"`
	BackupProvider string `mapstructure:"backup_provider"` // "local", "s3", "azblob", "gcs", "b2"
	BackupLocalDir string `mapstructure:"backup_local_dir"`
	BackupBucket   string `mapstructure:"backup_bucket"`
	BackupRegion   string `mapstructure:"backup_region"`
	BackupPrefix   string `mapstructure:"backup_prefix"`

	BridgeWebSocketAddr string `mapstructure:"bridge_websocket_addr"`
	BridgeWebRTCEnabled bool   `mapstructure:"bridge_webrtc_enabled"`
}

// Default returns a Config populated with the same conservative defaults
// the CLI ships with out of the box.
func Default() *Config {
	return &Config{
		Network:               "tcp",
		ConnectTimeoutSeconds: 10,
		RequestTimeoutSeconds: 10,
		KeepAliveOverrideSecs: 0,
		DownloadDir:           "./downloads",
		LogLevel:              "info",
		LogFormat:             "text",
		BackupProvider:        "local",
		BackupLocalDir:        "./backups",
	}
}

// Load reads a YAML profile (explicit path, or "dvrip.yaml" from the
// config directory / cwd) layered under environment variable overrides
// (prefix DVRIP_), and applies tiered validation.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dvrip")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DVRIP")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		slog.Warn("config validation", "error", w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			slog.Error("config validation fatal", "error", f)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// Save writes cfg back to its default location.
func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

// SaveTo writes cfg to cfgFile, or the default config directory when empty.
func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("device_address", cfg.DeviceAddress)
	viper.Set("device_user", cfg.DeviceUser)
	viper.Set("device_password", cfg.DevicePassword)
	viper.Set("network", cfg.Network)
	viper.Set("interface", cfg.Interface)
	viper.Set("connect_timeout_seconds", cfg.ConnectTimeoutSeconds)
	viper.Set("request_timeout_seconds", cfg.RequestTimeoutSeconds)
	viper.Set("keep_alive_override_seconds", cfg.KeepAliveOverrideSecs)
	viper.Set("download_dir", cfg.DownloadDir)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("backup_enabled", cfg.BackupEnabled)
	viper.Set("backup_provider", cfg.BackupProvider)
	viper.Set("backup_local_dir", cfg.BackupLocalDir)
	viper.Set("backup_bucket", cfg.BackupBucket)
	viper.Set("backup_region", cfg.BackupRegion)
	viper.Set("backup_prefix", cfg.BackupPrefix)
	viper.Set("bridge_websocket_addr", cfg.BridgeWebSocketAddr)
	viper.Set("bridge_webrtc_enabled", cfg.BridgeWebRTCEnabled)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		if dir := filepath.Dir(cfgPath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "dvrip.yaml")
		if err := os.MkdirAll(configDir(), 0o700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// The profile holds a plaintext device password; restrict to owner.
	return os.Chmod(cfgPath, 0o600)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "dvrip")
	case "darwin":
		return "/Library/Application Support/dvrip"
	default:
		return "/etc/dvrip"
	}
}
