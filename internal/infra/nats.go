package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// ConnectNATS dials the broker with reconnects enabled and connection
// events logged.
func ConnectNATS(url, name string, logger *zap.Logger, opts ...nats.Option) (*nats.Conn, error) {
	base := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// NATSEventSource implements domain.EventSource. Events arrive as JSON on
// the event subjects; a message carrying a reply subject gets the handler's
// reply back. Settings broadcasts are delivered as preference changes.
type NATSEventSource struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewNATSEventSource creates an event source on nc.
func NewNATSEventSource(nc *nats.Conn, logger *zap.Logger) *NATSEventSource {
	return &NATSEventSource{nc: nc, logger: logger}
}

// Listen handles messages one at a time until ctx is canceled (nil) or the
// connection closes (error).
func (s *NATSEventSource) Listen(ctx context.Context, handle func(context.Context, domain.Event) domain.Reply) error {
	msgs := make(chan *nats.Msg, 64)

	events, err := s.nc.ChanSubscribe(EventSubjectWildcard, msgs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", EventSubjectWildcard, err)
	}
	defer events.Unsubscribe()

	settings, err := s.nc.ChanSubscribe(SettingsChangedSubject, msgs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SettingsChangedSubject, err)
	}
	defer settings.Unsubscribe()

	if err := s.nc.Flush(); err != nil {
		return fmt.Errorf("failed to register subscriptions: %w", err)
	}

	closed := make(chan struct{})
	s.nc.SetClosedHandler(func(*nats.Conn) { close(closed) })
	if s.nc.IsClosed() {
		return nats.ErrConnectionClosed
	}

	s.logger.Info("listening for events", zap.String("subject", EventSubjectWildcard))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return nats.ErrConnectionClosed
		case msg := <-msgs:
			s.handle(ctx, msg, handle)
		}
	}
}

func (s *NATSEventSource) handle(ctx context.Context, msg *nats.Msg, handle func(context.Context, domain.Event) domain.Reply) {
	ev, err := s.decode(msg)
	if err != nil {
		s.logger.Warn("dropping malformed event",
			zap.String("subject", msg.Subject),
			zap.Error(err))
		return
	}

	reply := handle(ctx, ev)
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(EncodeReply(reply))
	if err != nil {
		s.logger.Error("failed to marshal reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

func (s *NATSEventSource) decode(msg *nats.Msg) (domain.Event, error) {
	if msg.Subject == SettingsChangedSubject {
		var sc SettingsChangedMessage
		if err := json.Unmarshal(msg.Data, &sc); err != nil {
			return nil, fmt.Errorf("failed to decode settings broadcast: %w", err)
		}
		return domain.PreferenceChangedEvent{Key: sc.Key}, nil
	}
	return DecodeEvent(msg.Subject, msg.Data)
}

// NATSBroadcaster implements domain.Broadcaster by publishing on
// SettingsChangedSubject.
type NATSBroadcaster struct {
	nc *nats.Conn
}

// NewNATSBroadcaster creates a broadcaster on nc.
func NewNATSBroadcaster(nc *nats.Conn) *NATSBroadcaster {
	return &NATSBroadcaster{nc: nc}
}

// SettingsChanged publishes a broadcast for key and flushes it.
func (b *NATSBroadcaster) SettingsChanged(ctx context.Context, key string) error {
	data, err := json.Marshal(NewSettingsChangedMessage(key))
	if err != nil {
		return fmt.Errorf("failed to marshal settings broadcast: %w", err)
	}
	if err := b.nc.Publish(SettingsChangedSubject, data); err != nil {
		return fmt.Errorf("failed to publish settings broadcast: %w", err)
	}
	return b.nc.FlushWithContext(ctx)
}

// ErrNoResponder is returned when no daemon answers a request.
var ErrNoResponder = errors.New("no daemon is listening for events")

// NATSEventClient sends events to a running daemon.
type NATSEventClient struct {
	nc *nats.Conn
}

// NewNATSEventClient creates a client on nc.
func NewNATSEventClient(nc *nats.Conn) *NATSEventClient {
	return &NATSEventClient{nc: nc}
}

// Publish sends ev without waiting for a reply.
func (c *NATSEventClient) Publish(ev domain.Event) error {
	subject, data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err := c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return c.nc.Flush()
}

// Request sends ev and waits for the daemon's reply.
func (c *NATSEventClient) Request(ctx context.Context, ev domain.Event) (EventReply, error) {
	subject, data, err := EncodeEvent(ev)
	if err != nil {
		return EventReply{}, err
	}
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if errors.Is(err, nats.ErrNoResponders) {
		return EventReply{}, ErrNoResponder
	}
	if err != nil {
		return EventReply{}, fmt.Errorf("request on %s failed: %w", subject, err)
	}

	var reply EventReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return EventReply{}, fmt.Errorf("failed to decode reply: %w", err)
	}
	return reply, nil
}

var (
	_ domain.EventSource = (*NATSEventSource)(nil)
	_ domain.Broadcaster = (*NATSBroadcaster)(nil)
)
