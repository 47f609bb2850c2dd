package infra

import (
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// SleepInhibitor blocks host suspend until the returned closer is closed.
type SleepInhibitor interface {
	Inhibit(who, why string) (io.Closer, error)
}

// WakeLockManager implements domain.PowerManager. Each held lock owns one
// host sleep inhibitor; every acquisition is bounded by its timeout and an
// expired lock releases itself.
type WakeLockManager struct {
	inhibitor SleepInhibitor
	logger    *zap.Logger

	mu       sync.Mutex
	screenOn bool
	held     map[string]int // tag -> live holders
}

// NewWakeLockManager creates a manager reporting the given initial screen
// state. A nil inhibitor keeps locks process-local.
func NewWakeLockManager(screenOn bool, inhibitor SleepInhibitor, logger *zap.Logger) *WakeLockManager {
	return &WakeLockManager{
		inhibitor: inhibitor,
		logger:    logger,
		screenOn:  screenOn,
		held:      make(map[string]int),
	}
}

// NewWakeLock returns an unheld lock carrying tag.
func (m *WakeLockManager) NewWakeLock(tag string) domain.WakeLock {
	return &timedWakeLock{tag: tag, mgr: m}
}

// IsScreenOn reports the last known screen state.
func (m *WakeLockManager) IsScreenOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screenOn
}

// SetScreenOn records a screen state change.
func (m *WakeLockManager) SetScreenOn(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenOn = on
}

// Held returns the tags of currently held locks, sorted.
func (m *WakeLockManager) Held() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make([]string, 0, len(m.held))
	for tag := range m.held {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (m *WakeLockManager) hold(tag string) io.Closer {
	m.mu.Lock()
	m.held[tag]++
	m.mu.Unlock()
	m.logger.Debug("wake lock acquired", zap.String("tag", tag))

	if m.inhibitor == nil {
		return nil
	}
	c, err := m.inhibitor.Inhibit(InhibitWho, tag)
	if err != nil {
		m.logger.Warn("failed to inhibit sleep", zap.String("tag", tag), zap.Error(err))
		return nil
	}
	return c
}

func (m *WakeLockManager) drop(tag string, inhibit io.Closer, expired bool) {
	if inhibit != nil {
		if err := inhibit.Close(); err != nil {
			m.logger.Warn("failed to release sleep inhibitor", zap.String("tag", tag), zap.Error(err))
		}
	}

	m.mu.Lock()
	if m.held[tag] <= 1 {
		delete(m.held, tag)
	} else {
		m.held[tag]--
	}
	m.mu.Unlock()
	m.logger.Debug("wake lock released", zap.String("tag", tag), zap.Bool("expired", expired))
}

// timedWakeLock is a non-reference-counted lock: re-acquiring a held lock
// only extends its deadline.
type timedWakeLock struct {
	tag string
	mgr *WakeLockManager

	mu      sync.Mutex
	held    bool
	inhibit io.Closer
	timer   *time.Timer
	gen     uint64
}

func (l *timedWakeLock) Acquire(timeout time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	if !l.held {
		l.held = true
		l.inhibit = l.mgr.hold(l.tag)
	}
	l.gen++
	gen := l.gen
	l.timer = time.AfterFunc(timeout, func() { l.expire(gen) })
}

func (l *timedWakeLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked(false)
}

func (l *timedWakeLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *timedWakeLock) expire(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	l.releaseLocked(true)
}

func (l *timedWakeLock) releaseLocked(expired bool) {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if !l.held {
		return
	}
	l.held = false
	l.gen++
	l.mgr.drop(l.tag, l.inhibit, expired)
	l.inhibit = nil
}

var _ domain.PowerManager = (*WakeLockManager)(nil)
