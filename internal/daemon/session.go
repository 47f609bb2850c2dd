package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

const (
	// CompanionComponent is the identity the companion process binds under.
	CompanionComponent = "feedbackd.companion/keyguard-image"

	// ChunkSize is the payload size of one WRITE_CHUNK message.
	ChunkSize = 200 * 1024

	// DefaultRoundTripTimeout bounds the wait for each companion reply.
	DefaultRoundTripTimeout = 5 * time.Second
)

// Session errors. Every one of them ends the session.
var (
	ErrCompanionError   = errors.New("companion reported an error")
	ErrCompanionGone    = errors.New("companion disconnected")
	ErrRoundTripTimeout = errors.New("companion round trip timed out")
	ErrUnexpectedReply  = errors.New("unexpected companion reply")
)

// FrameInfo describes the frame a session streams.
type FrameInfo struct {
	SourceWidth  int
	SourceHeight int
	Width        int
	Height       int
}

// CaptureSession streams one encoded frame to the companion process:
// BEGIN, then one WRITE_CHUNK per ACK until the payload is exhausted, then
// FINISH. The session releases its channel and wake lock when it ends,
// whatever the outcome. Sessions are single use.
type CaptureSession struct {
	id        string
	connector domain.CompanionConnector
	wakeLock  domain.WakeLock
	timeout   time.Duration
	frame     FrameInfo
	logger    *zap.Logger

	mu      sync.Mutex
	state   domain.SessionState
	history []domain.SessionState
	offset  int
	chunks  int
}

// NewCaptureSession creates an UNBOUND session. wakeLock may be nil; when
// set, it is released as the session closes.
func NewCaptureSession(
	connector domain.CompanionConnector,
	wakeLock domain.WakeLock,
	frame FrameInfo,
	timeout time.Duration,
	logger *zap.Logger,
) *CaptureSession {
	if timeout <= 0 {
		timeout = DefaultRoundTripTimeout
	}
	id := uuid.NewString()
	return &CaptureSession{
		id:        id,
		connector: connector,
		wakeLock:  wakeLock,
		timeout:   timeout,
		frame:     frame,
		logger:    logger.With(zap.String("session", id)),
		state:     domain.SessionUnbound,
		history:   []domain.SessionState{domain.SessionUnbound},
	}
}

// ID returns the session identity.
func (s *CaptureSession) ID() string { return s.id }

// Frame returns the dimensions of the streamed frame.
func (s *CaptureSession) Frame() FrameInfo { return s.frame }

// State returns the current connection state.
func (s *CaptureSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every state the session has been in, in order.
func (s *CaptureSession) History() []domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SessionState(nil), s.history...)
}

// Progress returns the byte offset reached and the number of chunks sent.
func (s *CaptureSession) Progress() (offset, chunks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset, s.chunks
}

// Stream delivers payload to the companion. It blocks until the companion
// acknowledges FINISH or the session fails. The session is UNBOUND again
// when Stream returns.
func (s *CaptureSession) Stream(ctx context.Context, payload []byte) (err error) {
	defer func() {
		if s.wakeLock != nil {
			s.wakeLock.Release()
		}
		s.transition(domain.SessionUnbound)
	}()

	s.transition(domain.SessionBinding)
	ch, err := s.connector.Bind(ctx, CompanionComponent)
	if err != nil {
		s.transition(domain.SessionClosing)
		return fmt.Errorf("failed to bind companion: %w", err)
	}
	defer func() {
		s.transition(domain.SessionClosing)
		if cerr := ch.Close(); cerr != nil {
			s.logger.Debug("failed to close companion channel", zap.Error(cerr))
		}
	}()

	s.transition(domain.SessionBound)
	if err := s.send(ctx, ch, domain.MsgBegin, nil); err != nil {
		return err
	}

	s.transition(domain.SessionStreaming)
	for {
		if err := s.await(ctx, ch); err != nil {
			return err
		}

		s.mu.Lock()
		start := s.offset
		s.mu.Unlock()

		if start >= len(payload) {
			break
		}
		end := min(start+ChunkSize, len(payload))

		if err := s.send(ctx, ch, domain.MsgWriteChunk, payload[start:end]); err != nil {
			return err
		}
		s.mu.Lock()
		s.offset = end
		s.chunks++
		s.mu.Unlock()
	}

	if err := s.send(ctx, ch, domain.MsgFinish, nil); err != nil {
		return err
	}
	if err := s.await(ctx, ch); err != nil {
		return err
	}

	s.logger.Info("frame streamed to companion",
		zap.Int("bytes", len(payload)),
		zap.Int("width", s.frame.Width),
		zap.Int("height", s.frame.Height))
	return nil
}

func (s *CaptureSession) send(ctx context.Context, ch domain.CompanionChannel, kind domain.MessageKind, data []byte) error {
	if err := ch.Send(ctx, domain.CompanionMessage{Kind: kind, Data: data}); err != nil {
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}
	return nil
}

// await waits for the companion's ACK to the last message.
func (s *CaptureSession) await(ctx context.Context, ch domain.CompanionChannel) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch.Replies():
		if !ok {
			return ErrCompanionGone
		}
		switch msg.Kind {
		case domain.MsgAck:
			return nil
		case domain.MsgError:
			return fmt.Errorf("%w: %s", ErrCompanionError, string(msg.Data))
		default:
			return fmt.Errorf("%w: %s", ErrUnexpectedReply, msg.Kind)
		}
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrRoundTripTimeout, s.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CaptureSession) transition(to domain.SessionState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.history = append(s.history, to)
	s.mu.Unlock()

	s.logger.Debug("capture session state",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}
