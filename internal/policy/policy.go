// Package policy implements the notification feedback policy: per-app LED
// profiles persisted as "field:value" records, and the quiet-hours time
// window evaluation.
package policy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// ErrProfileInvalid is returned when a profile fails validation on save.
var ErrProfileInvalid = errors.New("invalid profile")

// Record field names.
const (
	fieldEnabled              = "enabled"
	fieldOngoing              = "ongoing"
	fieldLedOnMs              = "ledOnMs"
	fieldLedOffMs             = "ledOffMs"
	fieldColor                = "color"
	fieldSoundOverride        = "soundOverride"
	fieldSound                = "sound"
	fieldSoundOnlyOnce        = "soundOnlyOnce"
	fieldSoundOnlyOnceTimeout = "soundOnlyOnceTimeout"
	fieldInsistent            = "insistent"
	fieldVibrateOverride      = "vibrateOverride"
	fieldVibratePattern       = "vibratePattern"
	fieldActiveScreenEnabled  = "activeScreenEnabled"
	fieldActiveScreenExpanded = "activeScreenExpanded"
	fieldLedMode              = "ledMode"
	fieldQhIgnore             = "qhIgnore"
	fieldQhIgnoreList         = "qhIgnoreList"
	fieldHeadsUpMode          = "headsUpMode"
)

// DecodeProfile builds a profile for appID from persisted records.
// A malformed field is dropped and keeps its default; the returned errors
// describe every dropped field. Unknown fields are ignored.
func DecodeProfile(appID string, records []string) (domain.LedProfile, []error) {
	p := domain.NewLedProfile(appID)
	var errs []error

	for _, rec := range records {
		key, val, found := strings.Cut(rec, ":")
		if !found {
			errs = append(errs, fmt.Errorf("record %q: missing separator", rec))
			continue
		}
		if err := applyField(&p, key, val); err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", key, err))
		}
	}

	return p, errs
}

func applyField(p *domain.LedProfile, key, val string) error {
	var err error
	switch key {
	case fieldEnabled:
		p.Enabled, err = parseBool(val, p.Enabled)
	case fieldOngoing:
		p.Ongoing, err = parseBool(val, p.Ongoing)
	case fieldLedOnMs:
		p.LedOnMs, err = parseDuration(val, p.LedOnMs)
	case fieldLedOffMs:
		p.LedOffMs, err = parseDuration(val, p.LedOffMs)
	case fieldColor:
		var c uint32
		c, err = ParseColor(val)
		if err == nil {
			p.Color = c
		}
	case fieldSoundOverride:
		p.SoundOverride, err = parseBool(val, p.SoundOverride)
	case fieldSound:
		p.SoundURI = val
	case fieldSoundOnlyOnce:
		p.SoundOnlyOnce, err = parseBool(val, p.SoundOnlyOnce)
	case fieldSoundOnlyOnceTimeout:
		var ms int64
		ms, err = strconv.ParseInt(val, 10, 64)
		if err == nil && ms < 0 {
			err = fmt.Errorf("negative timeout %d", ms)
		}
		if err == nil {
			p.SoundOnlyOnceTimeout = time.Duration(ms) * time.Millisecond
		}
	case fieldInsistent:
		p.Insistent, err = parseBool(val, p.Insistent)
	case fieldVibrateOverride:
		p.VibrateOverride, err = parseBool(val, p.VibrateOverride)
	case fieldVibratePattern:
		var pattern []int64
		pattern, err = ParseVibratePattern(val)
		if err == nil {
			p.VibratePattern = pattern
		}
	case fieldActiveScreenEnabled:
		p.ActiveScreenEnabled, err = parseBool(val, p.ActiveScreenEnabled)
	case fieldActiveScreenExpanded:
		p.ActiveScreenExpanded, err = parseBool(val, p.ActiveScreenExpanded)
	case fieldLedMode:
		m, ok := domain.ParseLedMode(val)
		if !ok {
			return fmt.Errorf("unknown led mode %q", val)
		}
		p.LedMode = m
	case fieldQhIgnore:
		p.QhIgnore, err = parseBool(val, p.QhIgnore)
	case fieldQhIgnoreList:
		p.QhIgnoreList = val
	case fieldHeadsUpMode:
		m, ok := domain.ParseHeadsUpMode(val)
		if !ok {
			return fmt.Errorf("unknown heads-up mode %q", val)
		}
		p.HeadsUpMode = m
	}
	return err
}

// EncodeProfile serializes p into its flat record set.
// Optional fields are omitted when empty.
func EncodeProfile(p domain.LedProfile) []string {
	recs := []string{
		rec(fieldEnabled, strconv.FormatBool(p.Enabled)),
		rec(fieldOngoing, strconv.FormatBool(p.Ongoing)),
		rec(fieldLedOnMs, strconv.Itoa(p.LedOnMs)),
		rec(fieldLedOffMs, strconv.Itoa(p.LedOffMs)),
		rec(fieldColor, strconv.FormatInt(int64(int32(p.Color)), 10)),
		rec(fieldSoundOverride, strconv.FormatBool(p.SoundOverride)),
	}
	if p.SoundURI != "" {
		recs = append(recs, rec(fieldSound, p.SoundURI))
	}
	recs = append(recs,
		rec(fieldSoundOnlyOnce, strconv.FormatBool(p.SoundOnlyOnce)),
		rec(fieldSoundOnlyOnceTimeout, strconv.FormatInt(p.SoundOnlyOnceTimeout.Milliseconds(), 10)),
		rec(fieldInsistent, strconv.FormatBool(p.Insistent)),
		rec(fieldVibrateOverride, strconv.FormatBool(p.VibrateOverride)),
	)
	if len(p.VibratePattern) > 0 {
		recs = append(recs, rec(fieldVibratePattern, FormatVibratePattern(p.VibratePattern)))
	}
	recs = append(recs,
		rec(fieldActiveScreenEnabled, strconv.FormatBool(p.ActiveScreenEnabled)),
		rec(fieldActiveScreenExpanded, strconv.FormatBool(p.ActiveScreenExpanded)),
		rec(fieldLedMode, string(p.LedMode)),
		rec(fieldQhIgnore, strconv.FormatBool(p.QhIgnore)),
	)
	if p.QhIgnoreList != "" {
		recs = append(recs, rec(fieldQhIgnoreList, p.QhIgnoreList))
	}
	recs = append(recs, rec(fieldHeadsUpMode, string(p.HeadsUpMode)))
	return recs
}

// Validate checks the invariants a profile must hold before it is saved.
func Validate(p domain.LedProfile) error {
	if p.AppID == "" {
		return fmt.Errorf("%w: empty app id", ErrProfileInvalid)
	}
	if p.LedOnMs <= 0 || p.LedOffMs <= 0 {
		return fmt.Errorf("%w: blink durations must be positive (on=%d off=%d)",
			ErrProfileInvalid, p.LedOnMs, p.LedOffMs)
	}
	for _, v := range p.VibratePattern {
		if v < 0 {
			return fmt.Errorf("%w: negative vibration duration %d", ErrProfileInvalid, v)
		}
	}
	if _, ok := domain.ParseLedMode(string(p.LedMode)); !ok {
		return fmt.Errorf("%w: led mode %q", ErrProfileInvalid, p.LedMode)
	}
	if _, ok := domain.ParseHeadsUpMode(string(p.HeadsUpMode)); !ok {
		return fmt.Errorf("%w: heads-up mode %q", ErrProfileInvalid, p.HeadsUpMode)
	}
	return nil
}

// ParseVibratePattern parses a comma-separated list of non-negative
// millisecond durations. Any bad element rejects the whole pattern.
func ParseVibratePattern(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	pattern := make([]int64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad pattern element %q: %w", part, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("negative pattern element %d", v)
		}
		pattern[i] = v
	}
	return pattern, nil
}

// FormatVibratePattern is the inverse of ParseVibratePattern.
func FormatVibratePattern(pattern []int64) string {
	parts := make([]string, len(pattern))
	for i, v := range pattern {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

// ParseColor accepts a decimal ARGB value (signed or unsigned 32-bit) or
// a hex value prefixed with "#" or "0x".
func ParseColor(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if hex, ok := cutHexPrefix(s); ok {
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("bad hex color %q: %w", s, err)
		}
		return uint32(v), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad color %q: %w", s, err)
	}
	if v < -(1<<31) || v > (1<<32)-1 {
		return 0, fmt.Errorf("color %d out of range", v)
	}
	return uint32(v), nil
}

func cutHexPrefix(s string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, "#"); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		return rest, true
	}
	return s, false
}

func parseBool(val string, cur bool) (bool, error) {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return cur, err
	}
	return b, nil
}

func parseDuration(val string, cur int) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return cur, err
	}
	if n <= 0 {
		return cur, fmt.Errorf("duration must be positive, got %d", n)
	}
	return n, nil
}

func rec(key, val string) string {
	return key + ":" + val
}
