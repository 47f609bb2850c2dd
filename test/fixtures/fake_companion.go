// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"bytes"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/infra"
)

// CompanionStream is one session as the companion saw it.
type CompanionStream struct {
	Component string
	Messages  []domain.MessageKind
	Payload   []byte
	Finished  bool
}

// FakeCompanion is a lock-screen companion process listening on a local
// WebSocket. It acknowledges every message and reassembles the streamed
// payload, unless told to fail.
type FakeCompanion struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	streams   []*CompanionStream
	failAfter int // reply ERROR to the nth WRITE_CHUNK, 0 to never fail
	silent    bool
}

// NewFakeCompanion starts a companion on a random loopback port.
func NewFakeCompanion() (*FakeCompanion, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	f := &FakeCompanion{listener: l}
	f.server = &http.Server{Handler: http.HandlerFunc(f.serve)}
	go func() { _ = f.server.Serve(l) }()
	return f, nil
}

// Addr returns the host:port to configure the connector with.
func (f *FakeCompanion) Addr() string {
	return f.listener.Addr().String()
}

// FailOnChunk makes the companion reply ERROR to the nth chunk.
func (f *FakeCompanion) FailOnChunk(n int) {
	f.mu.Lock()
	f.failAfter = n
	f.mu.Unlock()
}

// Silence makes the companion stop replying.
func (f *FakeCompanion) Silence() {
	f.mu.Lock()
	f.silent = true
	f.mu.Unlock()
}

// Streams returns a copy of every session seen so far.
func (f *FakeCompanion) Streams() []CompanionStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CompanionStream, 0, len(f.streams))
	for _, s := range f.streams {
		c := *s
		c.Messages = append([]domain.MessageKind(nil), s.Messages...)
		c.Payload = append([]byte(nil), s.Payload...)
		out = append(out, c)
	}
	return out
}

// Close stops the listener and drops open connections.
func (f *FakeCompanion) Close() error {
	return f.server.Close()
}

func (f *FakeCompanion) serve(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, infra.BindPathPrefix) {
		http.NotFound(w, r)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	stream := &CompanionStream{Component: strings.TrimPrefix(r.URL.Path, infra.BindPathPrefix)}
	f.mu.Lock()
	f.streams = append(f.streams, stream)
	f.mu.Unlock()

	var payload bytes.Buffer
	chunks := 0
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := infra.UnmarshalCompanionMessage(frame)
		if err != nil {
			return
		}

		f.mu.Lock()
		stream.Messages = append(stream.Messages, msg.Kind)
		reply := domain.CompanionMessage{Kind: domain.MsgAck}
		switch msg.Kind {
		case domain.MsgWriteChunk:
			chunks++
			payload.Write(msg.Data)
			if f.failAfter > 0 && chunks == f.failAfter {
				reply = domain.CompanionMessage{Kind: domain.MsgError, Data: []byte("disk full")}
			}
		case domain.MsgFinish:
			stream.Finished = true
			stream.Payload = append([]byte(nil), payload.Bytes()...)
		}
		silent := f.silent
		f.mu.Unlock()

		if silent {
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, infra.MarshalCompanionMessage(reply)); err != nil {
			return
		}
	}
}
