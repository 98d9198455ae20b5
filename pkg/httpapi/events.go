// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jllopis/vigil/pkg/monitor"
)

const (
	defaultClientBuffer = 64
	writeTimeout        = 5 * time.Second
)

// Broadcaster fans monitor events out to websocket subscribers. It implements
// monitor.EventEmitter; slow subscribers lose events instead of blocking the
// monitor.
type Broadcaster struct {
	mu       sync.Mutex
	clients  map[*subscriber]struct{}
	closed   bool
	buffer   int
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

type subscriber struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	dropped int
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// NewBroadcaster creates a broadcaster. A nil logger uses slog.Default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		clients: make(map[*subscriber]struct{}),
		buffer:  defaultClientBuffer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Emit implements monitor.EventEmitter.
func (b *Broadcaster) Emit(_ context.Context, event monitor.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("failed to encode event", "type", string(event.Type), "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.clients {
		select {
		case s.send <- data:
		default:
			s.dropped++
		}
	}
}

// Subscribers returns the number of connected clients.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the broadcaster is closed.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{
		conn: conn,
		send: make(chan []byte, b.buffer),
		done: make(chan struct{}),
	}
	if !b.add(s) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	b.logger.Debug("event subscriber connected", "remote", r.RemoteAddr)

	// Reads only detect the peer going away.
	go func() {
		defer s.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	b.writeLoop(s)
	b.remove(s)
	_ = conn.Close()
	b.logger.Debug("event subscriber disconnected", "remote", r.RemoteAddr, "dropped", s.dropped)
}

func (b *Broadcaster) writeLoop(s *subscriber) {
	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (b *Broadcaster) add(s *subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.clients[s] = struct{}{}
	return true
}

func (b *Broadcaster) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, s)
}

// Close disconnects every subscriber and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.clients {
		s.close()
	}
}
