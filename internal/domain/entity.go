// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// DefaultAppID is the profile every app without its own record falls back to.
const DefaultAppID = "default"

// LedMode selects how a profile treats the light requested by the app.
type LedMode string

const (
	LedModeOriginal LedMode = "ORIGINAL" // use what the app requested
	LedModeOverride LedMode = "OVERRIDE" // use the profile's fields
	LedModeOff      LedMode = "OFF"      // never light up
)

// ParseLedMode returns the mode for s, or false if s is not a known mode.
func ParseLedMode(s string) (LedMode, bool) {
	switch m := LedMode(s); m {
	case LedModeOriginal, LedModeOverride, LedModeOff:
		return m, true
	}
	return "", false
}

// HeadsUpMode is the policy for transient on-screen banners.
type HeadsUpMode string

const (
	HeadsUpDefault   HeadsUpMode = "DEFAULT"
	HeadsUpAlways    HeadsUpMode = "ALWAYS"
	HeadsUpImmersive HeadsUpMode = "IMMERSIVE"
	HeadsUpOff       HeadsUpMode = "OFF"
)

// ParseHeadsUpMode returns the mode for s, or false if s is not a known mode.
func ParseHeadsUpMode(s string) (HeadsUpMode, bool) {
	switch m := HeadsUpMode(s); m {
	case HeadsUpDefault, HeadsUpAlways, HeadsUpImmersive, HeadsUpOff:
		return m, true
	}
	return "", false
}

// LedProfile is the per-app notification feedback configuration.
// Persisted as a flat set of "field:value" records keyed by AppID.
type LedProfile struct {
	AppID                string
	Enabled              bool
	Ongoing              bool
	LedOnMs              int
	LedOffMs             int
	Color                uint32 // ARGB
	SoundOverride        bool
	SoundURI             string
	SoundOnlyOnce        bool
	SoundOnlyOnceTimeout time.Duration
	Insistent            bool
	VibrateOverride      bool
	VibratePattern       []int64 // milliseconds, alternating off/on
	ActiveScreenEnabled  bool
	ActiveScreenExpanded bool
	LedMode              LedMode
	QhIgnore             bool
	QhIgnoreList         string // comma-separated keywords
	HeadsUpMode          HeadsUpMode
}

// NewLedProfile returns a profile for appID populated with built-in defaults.
func NewLedProfile(appID string) LedProfile {
	return LedProfile{
		AppID:       appID,
		LedOnMs:     1000,
		LedOffMs:    5000,
		Color:       0xffffffff,
		LedMode:     LedModeOverride,
		HeadsUpMode: HeadsUpDefault,
	}
}

// QuietHoursMode forces quiet hours on/off or lets the schedule decide.
type QuietHoursMode string

const (
	QuietHoursOn   QuietHoursMode = "ON"
	QuietHoursOff  QuietHoursMode = "OFF"
	QuietHoursAuto QuietHoursMode = "AUTO"
)

// QuietHoursPolicy is the global quiet-hours configuration.
// Start/End values are minutes since midnight (0-1439).
type QuietHoursPolicy struct {
	Locked       bool // when set quiet hours are entirely inert
	Enabled      bool
	Start        int
	End          int
	WeekendStart int
	WeekendEnd   int
	MuteLED      bool
	MuteVibe     bool
	ShowIcon     bool
	Mode         QuietHoursMode
	Interactive  bool
}

// DefaultQuietHours returns the policy used when nothing is persisted.
func DefaultQuietHours() QuietHoursPolicy {
	return QuietHoursPolicy{
		Start:        1380,
		End:          360,
		WeekendStart: 1380,
		WeekendEnd:   360,
		MuteVibe:     true,
		ShowIcon:     true,
		Mode:         QuietHoursAuto,
	}
}

// LightRequest is the light an app asked for when posting a notification.
type LightRequest struct {
	Color    uint32
	LedOnMs  int
	LedOffMs int
}

// Notification is the host's notification model reduced to what the
// decision engine needs. Texts are the user-visible fragments already
// extracted from the rendered content, in display order.
type Notification struct {
	AppID      string
	TickerText string
	Texts      []string
	Ongoing    bool
	Light      LightRequest
}

// LightPlan describes the feedback to apply for an allowed notification.
type LightPlan struct {
	UseOriginal     bool // keep the app's requested values untouched
	Color           uint32
	LedOnMs         int
	LedOffMs        int
	Insistent       bool
	HeadsUp         HeadsUpMode
	SoundOverride   bool
	SoundURI        string
	SoundOnlyOnce   bool
	VibrateOverride bool
	VibratePattern  []int64
}

// FeedbackEffects lists which channels quiet hours mute.
type FeedbackEffects struct {
	MuteSound     bool
	MuteLED       bool
	MuteVibration bool
	ShowIcon      bool
}

// Decision is the outcome of evaluating one notification.
type Decision struct {
	AppID      string
	Suppressed bool // Effects mutes at least one channel
	LedOff     bool // profile LED mode is OFF
	Reason     string
	Plan       *LightPlan // applies to every channel Effects leaves unmuted
	Effects    FeedbackEffects
}

// BacklightMode is the steady-state behaviour of the button backlight.
type BacklightMode string

const (
	BacklightAlwaysOn BacklightMode = "ALWAYS_ON"
	BacklightDisable  BacklightMode = "DISABLE"
	BacklightDefault  BacklightMode = "DEFAULT"
)

// ParseBacklightMode returns the mode for s, defaulting to BacklightDefault.
func ParseBacklightMode(s string) BacklightMode {
	switch m := BacklightMode(s); m {
	case BacklightAlwaysOn, BacklightDisable:
		return m
	}
	return BacklightDefault
}

// LightChannel identifies a hardware light.
type LightChannel int

const (
	LightButtons       LightChannel = 2
	LightNotifications LightChannel = 4
	LightAttention     LightChannel = 5
)

// SessionState is the connection state of a capture stream session.
type SessionState string

const (
	SessionUnbound   SessionState = "UNBOUND"
	SessionBinding   SessionState = "BINDING"
	SessionBound     SessionState = "BOUND"
	SessionStreaming SessionState = "STREAMING"
	SessionClosing   SessionState = "CLOSING"
)

// MessageKind is a companion protocol control message.
type MessageKind byte

const (
	MsgBegin MessageKind = iota + 1
	MsgWriteChunk
	MsgFinish
	MsgError
	MsgAck // companion is ready for the next message
)

func (k MessageKind) String() string {
	switch k {
	case MsgBegin:
		return "BEGIN"
	case MsgWriteChunk:
		return "WRITE_CHUNK"
	case MsgFinish:
		return "FINISH"
	case MsgError:
		return "ERROR"
	case MsgAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// CompanionMessage is one message exchanged with the companion process.
type CompanionMessage struct {
	Kind MessageKind
	Data []byte
}

// DaemonRole identifies the type of daemon process.
type DaemonRole string

const (
	RoleDaemon DaemonRole = "daemon"
)

// Daemon represents a running daemon process.
type Daemon struct {
	PID        int
	Role       DaemonRole
	Name       string
	StartedAt  time.Time
	AppVersion string
}

// RegistryEntry is the persisted state of the running daemon (for status).
type RegistryEntry struct {
	PID           int
	Name          string
	LastHeartbeat int64
	AppVersion    string
	Mode          string
}
