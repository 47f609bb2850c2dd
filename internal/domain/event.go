package domain

// Event is an inbound call from the interception boundary.
// The set of variants is closed; the host adapter marshals native
// payloads into one of them.
type Event interface {
	eventKind() string
}

// Kind returns the stable name of the event variant.
func Kind(e Event) string {
	if e == nil {
		return "nil"
	}
	return e.eventKind()
}

// NotificationEvent asks for a feedback decision on a posted notification.
type NotificationEvent struct {
	Notification Notification
	UserPresent  bool
}

// LightSetEvent reports a hardware light being set. For the buttons channel
// the reply may carry a rewritten value.
type LightSetEvent struct {
	Channel LightChannel
	Color   uint32
	Mode    int
	OnMs    int
	OffMs   int
}

// ScreenEvent reports the screen turning on or off.
type ScreenEvent struct {
	On bool
}

// DisplayPowerEvent is a display power request.
type DisplayPowerEvent struct {
	ScreenOff      bool // requested state is fully off
	KeyguardLocked bool
}

// PreferenceChangedEvent reports an edited preference key.
type PreferenceChangedEvent struct {
	Key   string
	Value string
}

func (NotificationEvent) eventKind() string      { return "notification" }
func (LightSetEvent) eventKind() string          { return "light-set" }
func (ScreenEvent) eventKind() string            { return "screen" }
func (DisplayPowerEvent) eventKind() string      { return "display-power" }
func (PreferenceChangedEvent) eventKind() string { return "preference-changed" }

// Reply is what the core hands back to the interception boundary.
// Only set fields are meaningful.
type Reply struct {
	Decision *Decision
	Light    *LightSetEvent // rewritten payload, nil to leave untouched
}
