package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

func TestBrightness(t *testing.T) {
	tests := []struct {
		name  string
		color uint32
		max   int
		want  int
	}{
		{name: "off", color: 0x00000000, max: 255, want: 0},
		{name: "opaque black is off", color: 0xff000000, max: 255, want: 0},
		{name: "white is full", color: 0xffffffff, max: 255, want: 255},
		{name: "button full colour", color: 0xff6e6e6e, max: 255, want: 0x6e},
		{name: "strongest component wins", color: 0xff10ff20, max: 100, want: 100},
		{name: "scaled to max", color: 0xff800000, max: 1, want: 0},
		{name: "scaled to small max", color: 0xffff0000, max: 1, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Brightness(tt.color, tt.max))
		})
	}
}

func TestSysfsLightDriver_SetLight(t *testing.T) {
	root := t.TempDir()
	dir := fakeLED(t, root, "button-backlight", "255")

	d := NewSysfsLightDriver(root, map[domain.LightChannel]string{
		domain.LightButtons: "button-backlight",
	}, zap.NewNop())

	require.NoError(t, d.SetLight(domain.LightButtons, 0xff6e6e6e))
	raw, err := os.ReadFile(filepath.Join(dir, "brightness"))
	require.NoError(t, err)
	assert.Equal(t, "110", string(raw))

	require.NoError(t, d.SetLight(domain.LightButtons, 0))
	raw, err = os.ReadFile(filepath.Join(dir, "brightness"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(raw))
}

func TestSysfsLightDriver_UnmappedChannelIgnored(t *testing.T) {
	d := NewSysfsLightDriver(t.TempDir(), nil, zap.NewNop())

	assert.NoError(t, d.SetLight(domain.LightAttention, 0xffffffff))
}

func TestSysfsLightDriver_Errors(t *testing.T) {
	root := t.TempDir()
	dir := fakeLED(t, root, "broken", "not-a-number")

	d := NewSysfsLightDriver(root, map[domain.LightChannel]string{
		domain.LightButtons:       "broken",
		domain.LightNotifications: "missing",
	}, zap.NewNop())

	assert.Error(t, d.SetLight(domain.LightButtons, 0xffffffff))
	assert.Error(t, d.SetLight(domain.LightNotifications, 0xffffffff))

	raw, err := os.ReadFile(filepath.Join(dir, "brightness"))
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(raw), "nothing written on failure")
}

func TestNewSysfsLightDriver_DefaultRoot(t *testing.T) {
	d := NewSysfsLightDriver("", nil, zap.NewNop())
	assert.Equal(t, DefaultLEDRoot, d.root)
}
