// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeranaias/pyllamaui/internal/bridge"
	"github.com/jeranaias/pyllamaui/internal/session"
)

//go:embed static
var staticFiles embed.FS

const (
	sendBuffer      = 64
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// =============================================================================
// CLIENT
// =============================================================================

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// trySend queues data without blocking. It reports false when the client's
// buffer is full.
func (c *client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// =============================================================================
// SERVER
// =============================================================================

// Server serves the chat panel to webviews over HTTP and WebSocket. It is
// the controller's Sink: notifications are broadcast to every client.
type Server struct {
	log      *slog.Logger
	renderer *Renderer

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	dmu        sync.RWMutex
	dispatcher *bridge.Dispatcher

	mu      sync.RWMutex
	clients map[*client]bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAllowedOrigins restricts WebSocket origins. Without it only
// same-host and loopback origins are accepted.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				continue
			}
			s.allowedOrigins[origin] = true
			if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
				s.allowedHosts[parsed.Host] = true
			}
		}
	}
}

// New creates a panel server. Call SetDispatcher before serving.
func New(opts ...Option) *Server {
	s := &Server{
		log:            slog.Default(),
		renderer:       NewRenderer(),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		clients:        make(map[*client]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "panel")
	return s
}

// SetDispatcher sets the command router. The dispatcher usually takes
// s.Broadcast as its broadcast hook, so it is attached after construction.
func (s *Server) SetDispatcher(d *bridge.Dispatcher) {
	s.dmu.Lock()
	s.dispatcher = d
	s.dmu.Unlock()
}

func (s *Server) getDispatcher() *bridge.Dispatcher {
	s.dmu.RLock()
	defer s.dmu.RUnlock()
	return s.dispatcher
}

var _ session.Sink = (*Server)(nil)

// Notify broadcasts a controller notification. Text snapshots also carry
// their HTML rendering.
func (s *Server) Notify(n session.Notification) {
	msg := bridge.FromNotification(n)
	if msg.Type == bridge.TypeTextUpdated {
		msg.HTML = s.renderer.Render(msg.Text)
	}
	s.Broadcast(msg)
}

// Broadcast sends msg to every connected client. Clients that cannot keep
// up are disconnected.
func (s *Server) Broadcast(msg bridge.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Warn("BROADCAST_MARSHAL_FAILED", "type", msg.Type, "error", err)
		return
	}

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(data) {
			s.log.Warn("CLIENT_TOO_SLOW", "remote", c.conn.RemoteAddr().String())
			s.removeClient(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
	}
	s.mu.Unlock()
	c.close()
}

// =============================================================================
// HTTP
// =============================================================================

// Handler returns the panel's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	static, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(static)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return chain(recoverer(s.log), requestLogger(s.log), securityHeaders)(mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	d := s.getDispatcher()
	if d == nil {
		http.Error(w, "panel not ready", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WS_UPGRADE_FAILED", "error", err)
		return
	}
	conn.SetReadLimit(bridge.MaxLineSize)

	c := newClient(conn)
	s.addClient(c)
	s.log.Info("CLIENT_CONNECTED", "remote", conn.RemoteAddr().String(), "clients", s.ClientCount())

	reply := func(msg bridge.Message) {
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if !c.trySend(data) {
			s.removeClient(c)
		}
	}
	d.Hello(reply)

	defer func() {
		s.removeClient(c)
		s.log.Info("CLIENT_DISCONNECTED", "remote", conn.RemoteAddr().String(), "clients", s.ClientCount())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd bridge.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply(bridge.ErrorMessage("invalid JSON"))
			continue
		}
		d.Handle(cmd, reply)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ListenAndServe serves the panel on addr until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("PANEL_LISTEN", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
