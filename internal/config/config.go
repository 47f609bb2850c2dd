// Package config handles daemon configuration loading and defaults.
// Policy preferences are not configuration; they live in the encrypted
// store and are read at decision time.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/infra"
)

// Config holds all configuration for the daemon and CLI.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	NATS      NATSConfig      `yaml:"nats"`
	Companion CompanionConfig `yaml:"companion"`
	Capture   CaptureConfig   `yaml:"capture"`
	LEDs      LEDConfig       `yaml:"leds"`
	Power     PowerConfig     `yaml:"power"`
}

// NATSConfig locates the event broker.
type NATSConfig struct {
	URL            string        `yaml:"url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CompanionConfig locates the lock-screen companion process.
type CompanionConfig struct {
	Addr             string        `yaml:"addr"`
	RoundTripTimeout time.Duration `yaml:"round_trip_timeout"`
}

// CaptureConfig selects the screenshot tool.
type CaptureConfig struct {
	Command []string `yaml:"command"`
}

// PowerConfig controls how wake locks reach the host.
type PowerConfig struct {
	// InhibitSleep backs wake locks with systemd-logind sleep inhibitors.
	InhibitSleep bool `yaml:"inhibit_sleep"`
}

// LEDConfig maps light channels to LED class devices. Empty names leave
// the channel unwired.
type LEDConfig struct {
	Root          string `yaml:"root"`
	Buttons       string `yaml:"buttons"`
	Notifications string `yaml:"notifications"`
	Attention     string `yaml:"attention"`
}

// Devices returns the channel to device mapping.
func (l LEDConfig) Devices() map[domain.LightChannel]string {
	devices := make(map[domain.LightChannel]string)
	if l.Buttons != "" {
		devices[domain.LightButtons] = l.Buttons
	}
	if l.Notifications != "" {
		devices[domain.LightNotifications] = l.Notifications
	}
	if l.Attention != "" {
		devices[domain.LightAttention] = l.Attention
	}
	return devices
}

// DefaultConfig returns defaults for the detected execution mode.
func DefaultConfig() *Config {
	mode := infra.DetectExecMode()
	return &Config{
		DataDir:           mode.DataDir,
		LogDir:            mode.LogDir,
		LogLevel:          "info",
		HeartbeatInterval: 30 * time.Second,
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			RequestTimeout: 2 * time.Second,
		},
		Companion: CompanionConfig{
			Addr:             "127.0.0.1:7717",
			RoundTripTimeout: 5 * time.Second,
		},
		Capture: CaptureConfig{
			Command: append([]string(nil), infra.DefaultCaptureCommand...),
		},
		LEDs: LEDConfig{
			Root:    infra.DefaultLEDRoot,
			Buttons: "button-backlight",
		},
		Power: PowerConfig{InhibitSleep: true},
	}
}

// DefaultPath returns the config file location for the detected mode.
func DefaultPath() string {
	return infra.DetectExecMode().ConfigPath
}

// Load reads path (DefaultPath when empty) over the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath()
	}

	err := loadFromFile(cfg, path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// loadFromFile reads a YAML config file and merges it into cfg.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.DataDir = expandTilde(cfg.DataDir)
	cfg.LogDir = expandTilde(cfg.LogDir)
	return nil
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("data_dir is empty")
	case c.NATS.URL == "":
		return errors.New("nats.url is empty")
	case c.HeartbeatInterval <= 0:
		return errors.New("heartbeat_interval must be positive")
	case c.Companion.RoundTripTimeout <= 0:
		return errors.New("companion.round_trip_timeout must be positive")
	case c.NATS.RequestTimeout <= 0:
		return errors.New("nats.request_timeout must be positive")
	}
	return nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home := infra.GetRealUserHome()
	if home == "" {
		return path
	}
	return filepath.Join(home, path[1:])
}
