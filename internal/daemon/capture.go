package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/policy"
)

// CaptureWakeLockTimeout bounds the wake lock held across capture,
// encoding and streaming.
const CaptureWakeLockTimeout = 10 * time.Second

// Capture request rejections.
var (
	ErrSessionBusy     = errors.New("capture session already in flight")
	ErrCaptureDisabled = errors.New("last screen background disabled")
	ErrNotApplicable   = errors.New("display request does not need a capture")
)

// CaptureService turns screen-off requests into capture stream sessions.
// At most one session exists at a time; requests arriving while one is in
// flight are rejected. All work runs on the goroutine calling Run.
type CaptureService struct {
	capturer  domain.FrameCapturer
	connector domain.CompanionConnector
	power     domain.PowerManager
	prefs     policy.Prefs
	timeout   time.Duration
	logger    *zap.Logger

	busy     atomic.Bool
	requests chan domain.DisplayPowerEvent

	mu   sync.Mutex
	last *CaptureSession
}

// NewCaptureService creates a capture service. Call Run to start its worker.
func NewCaptureService(
	capturer domain.FrameCapturer,
	connector domain.CompanionConnector,
	power domain.PowerManager,
	prefs domain.PreferenceStore,
	roundTripTimeout time.Duration,
	logger *zap.Logger,
) *CaptureService {
	return &CaptureService{
		capturer:  capturer,
		connector: connector,
		power:     power,
		prefs:     policy.NewPrefs(prefs),
		timeout:   roundTripTimeout,
		logger:    logger,
		requests:  make(chan domain.DisplayPowerEvent, 1),
	}
}

// Enabled reports whether the lock screen shows the last screen.
func (s *CaptureService) Enabled() bool {
	return s.prefs.String(policy.KeyLockscreenBackground, policy.LockscreenBgDefault) == policy.LockscreenBgLastScreen
}

// Request queues a capture for ev and reports whether it was accepted.
// It never blocks.
func (s *CaptureService) Request(ev domain.DisplayPowerEvent) bool {
	err := s.TryRequest(ev)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrSessionBusy):
		s.logger.Info("capture request rejected", zap.Error(err))
	default:
		s.logger.Debug("capture request skipped", zap.Error(err))
	}
	return false
}

// TryRequest is Request with the rejection reason.
func (s *CaptureService) TryRequest(ev domain.DisplayPowerEvent) error {
	if !ev.ScreenOff || ev.KeyguardLocked {
		return ErrNotApplicable
	}
	if !s.Enabled() {
		return ErrCaptureDisabled
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrSessionBusy
	}
	select {
	case s.requests <- ev:
		return nil
	default:
		s.busy.Store(false)
		return ErrSessionBusy
	}
}

// Busy reports whether a session is queued or in flight.
func (s *CaptureService) Busy() bool {
	return s.busy.Load()
}

// LastSession returns the most recent session, nil if none ran yet.
func (s *CaptureService) LastSession() *CaptureSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run processes accepted requests until ctx is canceled.
func (s *CaptureService) Run(ctx context.Context) error {
	s.logger.Info("capture worker started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("capture worker stopping")
			return nil
		case <-s.requests:
			s.process(ctx)
			s.busy.Store(false)
		}
	}
}

// process runs one capture pipeline. Failures are logged; the host then
// shows its default background.
func (s *CaptureService) process(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("capture pipeline panicked", zap.Any("panic", r))
		}
	}()

	lock := s.power.NewWakeLock("feedbackd:capture")
	lock.Acquire(CaptureWakeLockTimeout)

	img, err := s.capturer.Capture(ctx, MaxCaptureLayer)
	if err != nil {
		lock.Release()
		s.logger.Warn("screen capture failed", zap.Error(err))
		return
	}

	src := img.Bounds()
	scaled := ScaleFrame(img)
	data, err := EncodeFrame(scaled)
	if err != nil {
		lock.Release()
		s.logger.Warn("frame encoding failed", zap.Error(err))
		return
	}

	frame := FrameInfo{
		SourceWidth:  src.Dx(),
		SourceHeight: src.Dy(),
		Width:        scaled.Bounds().Dx(),
		Height:       scaled.Bounds().Dy(),
	}
	session := NewCaptureSession(s.connector, lock, frame, s.timeout, s.logger)

	s.mu.Lock()
	s.last = session
	s.mu.Unlock()

	if err := session.Stream(ctx, data); err != nil {
		s.logger.Warn("capture stream failed",
			zap.String("session", session.ID()),
			zap.Error(err))
	}
}
