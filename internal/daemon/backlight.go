package daemon

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

const (
	// BacklightFullColor is the button backlight's lit value.
	BacklightFullColor uint32 = 0xff6e6e6e

	// BlinkOnDelay is how long the backlight stays lit in one blink cycle.
	BlinkOnDelay = 500 * time.Millisecond

	// BlinkOffDelay is how long the backlight stays dark in one blink cycle.
	BlinkOffDelay = 3000 * time.Millisecond

	// PendingWakeLockTimeout bounds the wake lock held while blinking.
	PendingWakeLockTimeout = time.Hour

	opaqueBlack uint32 = 0xff000000
)

// BacklightState is a snapshot of the controller for status output and tests.
type BacklightState struct {
	Mode          domain.BacklightMode
	ScreenOn      bool
	NotifyEnabled bool
	Pending       bool
	Color         uint32
}

// BacklightController drives the button backlight. In NORMAL state it
// applies the steady-state mode; while a notification is pending it blinks
// the backlight from the scheduler goroutine.
//
// All fields are guarded by mu. Blink steps run on the scheduler goroutine,
// events arrive on the dispatcher's goroutine.
type BacklightController struct {
	driver    domain.LightDriver
	scheduler domain.Scheduler
	wakeLock  domain.WakeLock
	logger    *zap.Logger

	mu            sync.Mutex
	mode          domain.BacklightMode
	screenOn      bool
	notifyEnabled bool
	pending       bool
	color         uint32
	step          domain.Cancelable
	generation    uint64
}

// NewBacklightController creates a controller in NORMAL state.
func NewBacklightController(
	driver domain.LightDriver,
	power domain.PowerManager,
	scheduler domain.Scheduler,
	logger *zap.Logger,
) *BacklightController {
	return &BacklightController{
		driver:        driver,
		scheduler:     scheduler,
		wakeLock:      power.NewWakeLock("feedbackd:button-backlight"),
		logger:        logger,
		mode:          domain.BacklightDefault,
		screenOn:      power.IsScreenOn(),
		notifyEnabled: false,
	}
}

// SetMode changes the steady-state mode and applies it unless blinking.
func (c *BacklightController) SetMode(mode domain.BacklightMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = mode
	c.logger.Info("backlight mode changed", zap.String("mode", string(mode)))
	if !c.pending {
		c.applySteadyLocked()
	}
}

// OnScreen records a screen transition and applies the steady state unless
// blinking.
func (c *BacklightController) OnScreen(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.screenOn = on
	if !c.pending {
		c.applySteadyLocked()
	}
}

// SetNotifyEnabled toggles blinking for pending notifications. Disabling it
// while blinking returns to the steady state.
func (c *BacklightController) SetNotifyEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notifyEnabled = enabled
	if !enabled && c.pending {
		c.exitPendingLocked()
	}
}

// OnLightSet observes a hardware light write. Notification and attention
// channels drive the pending state. For the buttons channel it returns the
// rewritten event and true when the steady-state mode overrides the value.
func (c *BacklightController) OnLightSet(ev domain.LightSetEvent) (domain.LightSetEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Channel {
	case domain.LightNotifications, domain.LightAttention:
		if !c.notifyEnabled {
			return ev, false
		}
		if ev.Color != 0 && !c.pending {
			c.enterPendingLocked()
		} else if ev.Color == 0 && c.pending {
			c.exitPendingLocked()
		}
		return ev, false

	case domain.LightButtons:
		return c.rewriteButtonsLocked(ev)
	}
	return ev, false
}

// State returns a snapshot of the controller.
func (c *BacklightController) State() BacklightState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BacklightState{
		Mode:          c.mode,
		ScreenOn:      c.screenOn,
		NotifyEnabled: c.notifyEnabled,
		Pending:       c.pending,
		Color:         c.color,
	}
}

// Close cancels any outstanding blink step and drops the wake lock.
func (c *BacklightController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelStepLocked()
	c.pending = false
	c.wakeLock.Release()
}

// rewriteButtonsLocked applies the steady-state mode to a host write. The
// blink owns the backlight while a notification is pending.
func (c *BacklightController) rewriteButtonsLocked(ev domain.LightSetEvent) (domain.LightSetEvent, bool) {
	if c.pending {
		return ev, false
	}
	switch c.mode {
	case domain.BacklightDisable:
		if ev.Color == 0 && ev.OnMs == 0 && ev.OffMs == 0 {
			return ev, false
		}
		return domain.LightSetEvent{Channel: ev.Channel}, true
	case domain.BacklightAlwaysOn:
		if c.screenOn && (ev.Color == 0 || ev.Color == opaqueBlack) {
			ev.Color = BacklightFullColor
			return ev, true
		}
	}
	return ev, false
}

func (c *BacklightController) enterPendingLocked() {
	c.pending = true
	c.color = 0
	c.wakeLock.Acquire(PendingWakeLockTimeout)
	c.logger.Debug("notification pending, blinking backlight")
	c.scheduleLocked(0)
}

func (c *BacklightController) exitPendingLocked() {
	c.pending = false
	c.wakeLock.Release()
	c.logger.Debug("notification cleared, backlight back to steady state")
	// The next step observes the cleared flag and restores the steady colour.
	c.scheduleLocked(0)
}

func (c *BacklightController) scheduleLocked(d time.Duration) {
	c.cancelStepLocked()
	c.generation++
	gen := c.generation
	c.step = c.scheduler.AfterFunc(d, func() { c.blinkStep(gen) })
}

func (c *BacklightController) cancelStepLocked() {
	if c.step != nil {
		c.step.Cancel()
		c.step = nil
	}
}

func (c *BacklightController) blinkStep(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.step = nil

	if !c.pending {
		c.color = c.steadyColorLocked()
		c.setLocked(c.color)
		return
	}

	if c.color == 0 {
		c.color = BacklightFullColor
		c.setLocked(c.color)
		c.scheduleLocked(BlinkOnDelay)
	} else {
		c.color = 0
		c.setLocked(c.color)
		c.scheduleLocked(BlinkOffDelay)
	}
}

func (c *BacklightController) steadyColorLocked() uint32 {
	if c.mode == domain.BacklightAlwaysOn && c.screenOn {
		return BacklightFullColor
	}
	return 0
}

// applySteadyLocked writes the one-shot steady colour. DEFAULT with the
// screen on leaves the hardware value alone.
func (c *BacklightController) applySteadyLocked() {
	switch c.mode {
	case domain.BacklightAlwaysOn:
		c.setLocked(c.steadyColorLocked())
	case domain.BacklightDisable:
		c.setLocked(0)
	default:
		if !c.screenOn {
			c.setLocked(0)
		}
	}
}

func (c *BacklightController) setLocked(color uint32) {
	if err := c.driver.SetLight(domain.LightButtons, color); err != nil {
		c.logger.Warn("failed to set button backlight",
			zap.Uint32("color", color),
			zap.Error(err))
	}
}
