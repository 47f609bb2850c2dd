package policy

import (
	"strconv"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// Preference keys of the configuration surface.
const (
	KeyLocked                = "uncLocked"
	KeyQuietHoursEnabled     = "quiet_hours_enabled"
	KeyQuietHoursStart       = "quiet_hours_start"
	KeyQuietHoursEnd         = "quiet_hours_end"
	KeyQuietHoursStartAlt    = "quiet_hours_start_alt"
	KeyQuietHoursEndAlt      = "quiet_hours_end_alt"
	KeyQuietHoursMuteLED     = "quiet_hours_mute_led"
	KeyQuietHoursMuteVibe    = "quiet_hours_mute_vibe"
	KeyQuietHoursIcon        = "quiet_hours_statusbar_icon"
	KeyQuietHoursMode        = "quiet_hours_mode"
	KeyQuietHoursInteractive = "quiet_hours_interactive"

	KeyButtonBacklightMode  = "button_backlight_mode"
	KeyButtonBacklightNotif = "button_backlight_notifications"
	KeyLockscreenBackground = "lockscreen_background"
)

// Lock screen background values.
const (
	LockscreenBgDefault    = "default"
	LockscreenBgLastScreen = "last_screen"
)

// Prefs reads typed values from a PreferenceStore. Every read goes to the
// store. Missing, unreadable or malformed values yield the caller's default.
type Prefs struct {
	store domain.PreferenceStore
}

// NewPrefs wraps store.
func NewPrefs(store domain.PreferenceStore) Prefs {
	return Prefs{store: store}
}

// String returns the value for key or def.
func (p Prefs) String(key, def string) string {
	v, ok, err := p.store.GetString(key)
	if err != nil || !ok {
		return def
	}
	return v
}

// Bool returns the value for key or def.
func (p Prefs) Bool(key string, def bool) bool {
	v, ok, err := p.store.GetString(key)
	if err != nil || !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int returns the value for key or def.
func (p Prefs) Int(key string, def int) int {
	v, ok, err := p.store.GetString(key)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// minuteOfDay reads a minutes-since-midnight value, rejecting out-of-range ones.
func (p Prefs) minuteOfDay(key string, def int) int {
	n := p.Int(key, def)
	if n < 0 || n > 1439 {
		return def
	}
	return n
}
