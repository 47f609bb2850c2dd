package infra

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// BindPathPrefix prefixes the component identity in the companion URL.
const BindPathPrefix = "/bind/"

const (
	companionWriteTimeout = 10 * time.Second
	companionReplyBuffer  = 4
)

// ErrEmptyFrame is returned for a frame with no kind byte.
var ErrEmptyFrame = errors.New("empty companion frame")

// MarshalCompanionMessage lays out msg as one binary frame: the kind byte
// followed by the payload.
func MarshalCompanionMessage(msg domain.CompanionMessage) []byte {
	frame := make([]byte, 1+len(msg.Data))
	frame[0] = byte(msg.Kind)
	copy(frame[1:], msg.Data)
	return frame
}

// UnmarshalCompanionMessage is the inverse of MarshalCompanionMessage.
func UnmarshalCompanionMessage(frame []byte) (domain.CompanionMessage, error) {
	if len(frame) == 0 {
		return domain.CompanionMessage{}, ErrEmptyFrame
	}
	msg := domain.CompanionMessage{Kind: domain.MessageKind(frame[0])}
	if len(frame) > 1 {
		msg.Data = frame[1:]
	}
	return msg, nil
}

// WebSocketConnector implements domain.CompanionConnector over a WebSocket
// to the companion process.
type WebSocketConnector struct {
	addr   string
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewWebSocketConnector creates a connector for the companion at addr
// (host:port).
func NewWebSocketConnector(addr string, logger *zap.Logger) *WebSocketConnector {
	return &WebSocketConnector{
		addr:   addr,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// Bind dials the companion endpoint for component.
func (c *WebSocketConnector) Bind(ctx context.Context, component string) (domain.CompanionChannel, error) {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: BindPathPrefix + component}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to bind %s: %s: %w", component, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to bind %s: %w", component, err)
	}

	ch := &wsChannel{
		conn:    conn,
		replies: make(chan domain.CompanionMessage, companionReplyBuffer),
		done:    make(chan struct{}),
		logger:  c.logger.With(zap.String("component", component)),
	}
	go ch.readLoop()
	return ch, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	replies chan domain.CompanionMessage
	done    chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

func (ch *wsChannel) Send(ctx context.Context, msg domain.CompanionMessage) error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	deadline := time.Now().Add(companionWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ch.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := ch.conn.WriteMessage(websocket.BinaryMessage, MarshalCompanionMessage(msg)); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Kind, err)
	}
	return nil
}

func (ch *wsChannel) Replies() <-chan domain.CompanionMessage {
	return ch.replies
}

func (ch *wsChannel) Close() error {
	var err error
	ch.once.Do(func() {
		ch.writeMu.Lock()
		_ = ch.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ch.writeMu.Unlock()

		err = ch.conn.Close()
		close(ch.done)
	})
	return err
}

func (ch *wsChannel) readLoop() {
	defer close(ch.replies)
	for {
		kind, frame, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ch.logger.Debug("companion connection lost", zap.Error(err))
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		msg, err := UnmarshalCompanionMessage(frame)
		if err != nil {
			ch.logger.Warn("dropping companion frame", zap.Error(err))
			continue
		}
		select {
		case ch.replies <- msg:
		case <-ch.done:
			return
		}
	}
}

var _ domain.CompanionConnector = (*WebSocketConnector)(nil)
