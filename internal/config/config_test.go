package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/infra"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, infra.DetectExecMode().DataDir, cfg.DataDir)
	assert.Equal(t, 5*time.Second, cfg.Companion.RoundTripTimeout)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, []string{"grim", "-"}, cfg.Capture.Command)
	assert.Equal(t, map[domain.LightChannel]string{domain.LightButtons: "button-backlight"}, cfg.LEDs.Devices())
	assert.True(t, cfg.Power.InhibitSleep)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: ~/feedbackd-data
log_level: debug
nats:
  url: nats://broker:4222
companion:
  round_trip_timeout: 750ms
capture:
  command: [scrot, "-"]
leds:
  root: /tmp/leds
  notifications: green
power:
  inhibit_sleep: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(infra.GetRealUserHome(), "feedbackd-data"), cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 2*time.Second, cfg.NATS.RequestTimeout, "unset nested field keeps default")
	assert.Equal(t, 750*time.Millisecond, cfg.Companion.RoundTripTimeout)
	assert.Equal(t, "127.0.0.1:7717", cfg.Companion.Addr)
	assert.Equal(t, []string{"scrot", "-"}, cfg.Capture.Command)
	assert.Equal(t, map[domain.LightChannel]string{
		domain.LightButtons:       "button-backlight",
		domain.LightNotifications: "green",
	}, cfg.LEDs.Devices())
	assert.False(t, cfg.Power.InhibitSleep)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed yaml", body: "nats: [unterminated"},
		{name: "bad duration", body: "heartbeat_interval: soon"},
		{name: "zero round trip", body: "companion:\n  round_trip_timeout: 0s"},
		{name: "empty nats url", body: "nats:\n  url: \"\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/feedbackd"
	cfg.Companion.RoundTripTimeout = 3 * time.Second

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestExpandTilde(t *testing.T) {
	home := infra.GetRealUserHome()

	assert.Equal(t, "", expandTilde(""))
	assert.Equal(t, "/abs/path", expandTilde("/abs/path"))
	assert.Equal(t, filepath.Join(home, "x"), expandTilde("~/x"))
}
