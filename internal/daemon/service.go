// Package daemon implements the feedback daemon: the event dispatcher, the
// button backlight controller, and the capture stream worker.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// ServiceConfig holds daemon loop configuration.
type ServiceConfig struct {
	HeartbeatInterval time.Duration // How often to update the registry heartbeat
}

// DefaultServiceConfig returns default daemon configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		HeartbeatInterval: 30 * time.Second,
	}
}

// Service is the daemon run loop. It feeds events from the source into
// the dispatcher and runs the capture worker next to it.
type Service struct {
	config     ServiceConfig
	source     domain.EventSource
	dispatcher *Dispatcher
	capture    *CaptureService
	backlight  *BacklightController
	scheduler  *Scheduler
	registry   domain.DaemonRegistry
	daemon     domain.Daemon
	logger     *zap.Logger
}

// NewService creates the daemon service.
func NewService(
	config ServiceConfig,
	source domain.EventSource,
	dispatcher *Dispatcher,
	capture *CaptureService,
	backlight *BacklightController,
	scheduler *Scheduler,
	registry domain.DaemonRegistry,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Service {
	return &Service{
		config:     config,
		source:     source,
		dispatcher: dispatcher,
		capture:    capture,
		backlight:  backlight,
		scheduler:  scheduler,
		registry:   registry,
		daemon:     daemon,
		logger:     logger,
	}
}

// Run starts the daemon. This blocks until ctx is canceled or the event
// source fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.registry.Register(s.daemon); err != nil {
		s.logger.Error("failed to register daemon", zap.Error(err))
		return fmt.Errorf("failed to register daemon: %w", err)
	}

	s.logger.Info("feedback daemon started",
		zap.Int("pid", s.daemon.PID),
		zap.String("name", s.daemon.Name),
		zap.String("version", s.daemon.AppVersion))

	s.dispatcher.ApplyPreferences()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return s.capture.Run(gctx)
	})
	g.Go(func() error {
		// A closed source ends the daemon.
		defer cancel()
		if err := s.source.Listen(gctx, s.dispatcher.Dispatch); err != nil {
			return fmt.Errorf("event source stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.heartbeat(gctx)
		return nil
	})

	err := g.Wait()

	s.backlight.Close()
	s.scheduler.Stop()

	if ctx.Err() != nil {
		s.logger.Info("feedback daemon stopping")
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("feedback daemon failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.registry.UpdateHeartbeat(s.daemon.Role); err != nil {
				s.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}
