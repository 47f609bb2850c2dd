package infra

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// NATS subjects. Each event variant is published on EventSubjectPrefix
// followed by its kind, e.g. "feedbackd.events.notification".
const (
	EventSubjectPrefix     = "feedbackd.events."
	EventSubjectWildcard   = "feedbackd.events.>"
	SettingsChangedSubject = "feedbackd.settings.changed"
)

type wireLight struct {
	Color    uint32 `json:"color"`
	LedOnMs  int    `json:"led_on_ms,omitempty"`
	LedOffMs int    `json:"led_off_ms,omitempty"`
}

type wireNotification struct {
	AppID       string    `json:"app_id"`
	TickerText  string    `json:"ticker_text,omitempty"`
	Texts       []string  `json:"texts,omitempty"`
	Ongoing     bool      `json:"ongoing,omitempty"`
	Light       wireLight `json:"light"`
	UserPresent bool      `json:"user_present,omitempty"`
}

type wireLightSet struct {
	Channel int    `json:"channel"`
	Color   uint32 `json:"color"`
	Mode    int    `json:"mode,omitempty"`
	OnMs    int    `json:"on_ms,omitempty"`
	OffMs   int    `json:"off_ms,omitempty"`
}

type wireScreen struct {
	On bool `json:"on"`
}

type wireDisplayPower struct {
	ScreenOff      bool `json:"screen_off"`
	KeyguardLocked bool `json:"keyguard_locked"`
}

type wirePreference struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// SettingsChangedMessage is the payload published on SettingsChangedSubject.
type SettingsChangedMessage struct {
	ID   string    `json:"id"`
	Key  string    `json:"key"`
	Time time.Time `json:"time"`
}

// NewSettingsChangedMessage stamps a broadcast for key.
func NewSettingsChangedMessage(key string) SettingsChangedMessage {
	return SettingsChangedMessage{ID: uuid.New().String(), Key: key, Time: time.Now().UTC()}
}

// LightPlanReply is the wire form of domain.LightPlan.
type LightPlanReply struct {
	UseOriginal     bool    `json:"use_original"`
	Color           uint32  `json:"color"`
	LedOnMs         int     `json:"led_on_ms"`
	LedOffMs        int     `json:"led_off_ms"`
	Insistent       bool    `json:"insistent,omitempty"`
	HeadsUp         string  `json:"heads_up,omitempty"`
	SoundOverride   bool    `json:"sound_override,omitempty"`
	SoundURI        string  `json:"sound_uri,omitempty"`
	SoundOnlyOnce   bool    `json:"sound_only_once,omitempty"`
	VibrateOverride bool    `json:"vibrate_override,omitempty"`
	VibratePattern  []int64 `json:"vibrate_pattern,omitempty"`
}

// DecisionReply is the wire form of domain.Decision.
type DecisionReply struct {
	AppID         string          `json:"app_id"`
	Suppressed    bool            `json:"suppressed"`
	LedOff        bool            `json:"led_off,omitempty"`
	Reason        string          `json:"reason"`
	Plan          *LightPlanReply `json:"plan,omitempty"`
	MuteSound     bool            `json:"mute_sound,omitempty"`
	MuteLED       bool            `json:"mute_led,omitempty"`
	MuteVibration bool            `json:"mute_vibration,omitempty"`
	ShowIcon      bool            `json:"show_icon,omitempty"`
}

// EventReply is the response body for a request on an event subject.
type EventReply struct {
	Decision *DecisionReply `json:"decision,omitempty"`
	Light    *wireLightSet  `json:"light,omitempty"`
}

// EncodeEvent returns the subject and JSON payload for ev.
func EncodeEvent(ev domain.Event) (string, []byte, error) {
	var body any
	switch e := ev.(type) {
	case domain.NotificationEvent:
		n := e.Notification
		body = wireNotification{
			AppID:       n.AppID,
			TickerText:  n.TickerText,
			Texts:       n.Texts,
			Ongoing:     n.Ongoing,
			Light:       wireLight{Color: n.Light.Color, LedOnMs: n.Light.LedOnMs, LedOffMs: n.Light.LedOffMs},
			UserPresent: e.UserPresent,
		}
	case domain.LightSetEvent:
		body = toWireLightSet(e)
	case domain.ScreenEvent:
		body = wireScreen{On: e.On}
	case domain.DisplayPowerEvent:
		body = wireDisplayPower{ScreenOff: e.ScreenOff, KeyguardLocked: e.KeyguardLocked}
	case domain.PreferenceChangedEvent:
		body = wirePreference{Key: e.Key, Value: e.Value}
	default:
		return "", nil, fmt.Errorf("unsupported event %s", domain.Kind(ev))
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal %s event: %w", domain.Kind(ev), err)
	}
	return EventSubjectPrefix + domain.Kind(ev), data, nil
}

// DecodeEvent parses a payload received on subject.
func DecodeEvent(subject string, data []byte) (domain.Event, error) {
	kind := strings.TrimPrefix(subject, EventSubjectPrefix)
	if kind == subject {
		return nil, fmt.Errorf("subject %q is not an event subject", subject)
	}

	switch kind {
	case "notification":
		var w wireNotification
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s event: %w", kind, err)
		}
		return domain.NotificationEvent{
			Notification: domain.Notification{
				AppID:      w.AppID,
				TickerText: w.TickerText,
				Texts:      w.Texts,
				Ongoing:    w.Ongoing,
				Light:      domain.LightRequest{Color: w.Light.Color, LedOnMs: w.Light.LedOnMs, LedOffMs: w.Light.LedOffMs},
			},
			UserPresent: w.UserPresent,
		}, nil
	case "light-set":
		var w wireLightSet
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s event: %w", kind, err)
		}
		return fromWireLightSet(w), nil
	case "screen":
		var w wireScreen
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s event: %w", kind, err)
		}
		return domain.ScreenEvent{On: w.On}, nil
	case "display-power":
		var w wireDisplayPower
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s event: %w", kind, err)
		}
		return domain.DisplayPowerEvent{ScreenOff: w.ScreenOff, KeyguardLocked: w.KeyguardLocked}, nil
	case "preference-changed":
		var w wirePreference
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s event: %w", kind, err)
		}
		return domain.PreferenceChangedEvent{Key: w.Key, Value: w.Value}, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", kind)
}

// EncodeReply converts a reply into its wire form.
func EncodeReply(r domain.Reply) EventReply {
	var out EventReply
	if r.Light != nil {
		l := toWireLightSet(*r.Light)
		out.Light = &l
	}
	if d := r.Decision; d != nil {
		out.Decision = &DecisionReply{
			AppID:         d.AppID,
			Suppressed:    d.Suppressed,
			LedOff:        d.LedOff,
			Reason:        d.Reason,
			MuteSound:     d.Effects.MuteSound,
			MuteLED:       d.Effects.MuteLED,
			MuteVibration: d.Effects.MuteVibration,
			ShowIcon:      d.Effects.ShowIcon,
		}
		if p := d.Plan; p != nil {
			out.Decision.Plan = &LightPlanReply{
				UseOriginal:     p.UseOriginal,
				Color:           p.Color,
				LedOnMs:         p.LedOnMs,
				LedOffMs:        p.LedOffMs,
				Insistent:       p.Insistent,
				HeadsUp:         string(p.HeadsUp),
				SoundOverride:   p.SoundOverride,
				SoundURI:        p.SoundURI,
				SoundOnlyOnce:   p.SoundOnlyOnce,
				VibrateOverride: p.VibrateOverride,
				VibratePattern:  p.VibratePattern,
			}
		}
	}
	return out
}

// RewrittenLight returns the light value carried by the reply, if any.
func (r EventReply) RewrittenLight() (domain.LightSetEvent, bool) {
	if r.Light == nil {
		return domain.LightSetEvent{}, false
	}
	return fromWireLightSet(*r.Light), true
}

func toWireLightSet(e domain.LightSetEvent) wireLightSet {
	return wireLightSet{Channel: int(e.Channel), Color: e.Color, Mode: e.Mode, OnMs: e.OnMs, OffMs: e.OffMs}
}

func fromWireLightSet(w wireLightSet) domain.LightSetEvent {
	return domain.LightSetEvent{
		Channel: domain.LightChannel(w.Channel),
		Color:   w.Color,
		Mode:    w.Mode,
		OnMs:    w.OnMs,
		OffMs:   w.OffMs,
	}
}
