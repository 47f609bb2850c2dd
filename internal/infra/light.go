package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// DefaultLEDRoot is where the kernel exposes LED class devices.
const DefaultLEDRoot = "/sys/class/leds"

// SysfsLightDriver implements domain.LightDriver on the Linux LED class.
// Each light channel maps to one LED device; brightness is the colour's
// strongest RGB component scaled to the device's max_brightness.
type SysfsLightDriver struct {
	root    string
	devices map[domain.LightChannel]string
	logger  *zap.Logger
}

// NewSysfsLightDriver creates a driver writing under root (DefaultLEDRoot
// when empty). Channels without a device are ignored.
func NewSysfsLightDriver(root string, devices map[domain.LightChannel]string, logger *zap.Logger) *SysfsLightDriver {
	if root == "" {
		root = DefaultLEDRoot
	}
	return &SysfsLightDriver{root: root, devices: devices, logger: logger}
}

// SetLight writes the brightness for color to the channel's device.
func (d *SysfsLightDriver) SetLight(ch domain.LightChannel, color uint32) error {
	name, ok := d.devices[ch]
	if !ok || name == "" {
		d.logger.Debug("no LED device for channel", zap.Int("channel", int(ch)))
		return nil
	}
	dir := filepath.Join(d.root, name)

	maxLevel, err := readInt(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return fmt.Errorf("failed to read max brightness of %s: %w", name, err)
	}
	value := Brightness(color, maxLevel)

	if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte(strconv.Itoa(value)), 0644); err != nil {
		return fmt.Errorf("failed to set brightness of %s: %w", name, err)
	}
	return nil
}

// Brightness maps an ARGB colour onto 0..maxLevel using its strongest RGB
// component. Alpha is ignored.
func Brightness(color uint32, maxLevel int) int {
	r := (color >> 16) & 0xff
	g := (color >> 8) & 0xff
	b := color & 0xff
	peak := r
	if g > peak {
		peak = g
	}
	if b > peak {
		peak = b
	}
	return int(peak) * maxLevel / 0xff
}

func readInt(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

var _ domain.LightDriver = (*SysfsLightDriver)(nil)
