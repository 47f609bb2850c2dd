package daemon

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/policy"
	"github.com/eliteGoblin/focusd/feedbackd/internal/usecase"
)

// Dispatcher is the inbound interception boundary. Every event is handled
// synchronously from resident state or handed to a worker; Dispatch never
// blocks on I/O and never panics.
type Dispatcher struct {
	decider   domain.DecisionEngine
	backlight *BacklightController
	capture   *CaptureService
	prefs     policy.Prefs
	screen    ScreenTracker
	logger    *zap.Logger
}

// ScreenTracker records screen state for collaborators that query it
// outside the event path.
type ScreenTracker interface {
	SetScreenOn(on bool)
}

// NewDispatcher wires the event handlers.
func NewDispatcher(
	decider domain.DecisionEngine,
	backlight *BacklightController,
	capture *CaptureService,
	prefs domain.PreferenceStore,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		decider:   decider,
		backlight: backlight,
		capture:   capture,
		prefs:     policy.NewPrefs(prefs),
		logger:    logger,
	}
}

// TrackScreen forwards every screen event to t.
func (d *Dispatcher) TrackScreen(t ScreenTracker) {
	d.screen = t
}

// Dispatch handles one event and returns the reply for the host.
// A failing handler yields the fail-open reply.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) (reply domain.Reply) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("event", domain.Kind(ev)),
				zap.Any("panic", r))
			reply = failOpenReply(ev)
		}
	}()

	switch e := ev.(type) {
	case domain.NotificationEvent:
		dec := d.decider.Decide(ctx, e.Notification, e.UserPresent)
		reply.Decision = &dec

	case domain.LightSetEvent:
		if out, changed := d.backlight.OnLightSet(e); changed {
			reply.Light = &out
		}

	case domain.ScreenEvent:
		if d.screen != nil {
			d.screen.SetScreenOn(e.On)
		}
		d.backlight.OnScreen(e.On)

	case domain.DisplayPowerEvent:
		d.capture.Request(e)

	case domain.PreferenceChangedEvent:
		d.applyPreference(e.Key, e.Value)

	default:
		d.logger.Warn("ignoring unknown event", zap.String("event", domain.Kind(ev)))
	}
	return reply
}

// ApplyPreferences loads the backlight settings from the store.
func (d *Dispatcher) ApplyPreferences() {
	d.applyPreference(policy.KeyButtonBacklightMode, "")
	d.applyPreference(policy.KeyButtonBacklightNotif, "")
}

// applyPreference reacts to an edited key. value overrides the stored
// value when non-empty. Quiet hours and profiles need nothing here since
// they are read at decision time.
func (d *Dispatcher) applyPreference(key, value string) {
	if value == "" {
		value = d.prefs.String(key, "")
	}

	switch key {
	case policy.KeyButtonBacklightMode:
		d.backlight.SetMode(domain.ParseBacklightMode(value))

	case policy.KeyButtonBacklightNotif:
		d.backlight.SetNotifyEnabled(parseFlag(value))

	case policy.KeyLockscreenBackground:
		d.logger.Info("lock screen background changed",
			zap.Bool("capture_enabled", d.capture.Enabled()))

	default:
		d.logger.Debug("preference changed", zap.String("key", key))
	}
}

// parseFlag reads a boolean preference; absent or unparsable is off.
func parseFlag(value string) bool {
	b, err := strconv.ParseBool(value)
	return err == nil && b
}

func failOpenReply(ev domain.Event) domain.Reply {
	if n, ok := ev.(domain.NotificationEvent); ok {
		dec := usecase.FailOpen(n.Notification)
		return domain.Reply{Decision: &dec}
	}
	return domain.Reply{}
}
