// Package server handles WebSocket connection management for the chat relay:
// upgrading authenticated HTTP requests, maintaining active connections and
// room subscriptions, and dispatching incoming events to registered handlers.
package server

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/connect/chat-app/internal/auth"
	"github.com/connect/chat-app/internal/metrics"
)

// Config holds tunable parameters for the WebSocket server.
type Config struct {
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // per-frame read timeout; resets on each frame
	WriteTimeout   time.Duration // timeout for outbound writes via Send
	MaxFrameBytes  int64         // maximum accepted data frame size
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 10000,
		ReadTimeout:    90 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxFrameBytes:  64 * 1024,
	}
}

// Server upgrades authenticated HTTP requests to WebSocket connections and
// runs a read-loop goroutine per connection. Incoming text frames are handed
// to the onMessage callback; connection lifecycle changes are reported
// through onConnect and onDisconnect.
type Server struct {
	config    Config
	jwtSecret string
	conns     *ConnectionManager
	rooms     *RoomRegistry

	onMessage    func(conn *Connection, data []byte)
	onConnect    func(conn *Connection)
	onDisconnect func(conn *Connection)

	mu   sync.Mutex
	done chan struct{}
}

// NewServer creates a Server with the given configuration and JWT secret.
// The onMessage function is called from the connection's read goroutine
// whenever a complete WebSocket text frame is received.
func NewServer(config Config, jwtSecret string, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:    config,
		jwtSecret: jwtSecret,
		conns:     NewConnectionManager(),
		rooms:     NewRoomRegistry(),
		onMessage: onMessage,
		done:      make(chan struct{}),
	}
}

// SetOnConnect registers a callback invoked after a connection is
// authenticated and registered.
func (s *Server) SetOnConnect(fn func(conn *Connection)) {
	s.onConnect = fn
}

// SetOnDisconnect registers a callback invoked when a connection is removed
// (read error, heartbeat timeout, or graceful close).
func (s *Server) SetOnDisconnect(fn func(conn *Connection)) {
	s.onDisconnect = fn
}

// Start launches the heartbeat monitor. The HTTP listener itself is owned by
// the caller, which mounts Handler on its router.
func (s *Server) Start() {
	StartHeartbeat(s, DefaultHeartbeatConfig())
}

// Handler returns the HTTP handler that upgrades requests to WebSocket
// connections. The request must carry a valid JWT in the Authorization
// header or the token query parameter.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.conns.Count() >= s.config.MaxConnections {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		token := auth.TokenFromRequest(r)
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ValidateToken(token, s.jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			log.Printf("server: upgrade failed: %v", err)
			return
		}

		c := &Connection{
			ID:        uuid.New().String(),
			UserID:    claims.UserID,
			Name:      claims.Name,
			Conn:      conn,
			CreatedAt: time.Now(),
			LastPing:  time.Now(),
		}
		s.conns.Add(c)
		metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

		log.Printf("server: new connection conn=%s user=%s (total=%d)", c.ID, c.UserID, s.conns.Count())

		if s.onConnect != nil {
			s.onConnect(c)
		}

		go s.readLoop(c)
	}
}

// readLoop reads WebSocket frames from the connection until it fails or the
// server shuts down. Control frames are handled inline; text frames are
// passed to the onMessage callback.
func (s *Server) readLoop(c *Connection) {
	defer s.RemoveConnection(c)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if s.config.ReadTimeout > 0 {
			_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				log.Printf("server: read timeout conn=%s user=%s", c.ID, c.UserID)
			}
			return
		}

		// Any frame proves the connection is alive.
		c.LastPing = time.Now()

		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return
			}
			if header.OpCode == ws.OpPing {
				_ = c.writePong()
			}
			// Drain the control frame payload.
			_, _ = io.Copy(io.Discard, reader)
			continue
		}

		if s.config.MaxFrameBytes > 0 && header.Length > s.config.MaxFrameBytes {
			log.Printf("server: oversized frame conn=%s len=%d", c.ID, header.Length)
			return
		}

		data := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(reader, data); err != nil {
				return
			}
		}
		if len(data) == 0 {
			continue
		}

		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

// writePong answers a client ping with a pong frame.
func (c *Connection) writePong() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPongFrame(nil))
}

// RemoveConnection removes a connection from the room registry and the
// connection manager, and closes the underlying network connection. It is
// exported so that the heartbeat monitor can evict dead connections.
func (s *Server) RemoveConnection(c *Connection) {
	// Guard: only proceed if the connection was actually in the manager.
	// This prevents double cleanup when the read loop and the heartbeat
	// race to remove the same connection.
	if !s.conns.Remove(c.ID) {
		return
	}
	s.rooms.LeaveAll(c.ID)
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}

	log.Printf("server: connection closed conn=%s user=%s (total=%d)", c.ID, c.UserID, s.conns.Count())
}

// Send writes a WebSocket text frame to the connection identified by connID.
// It is goroutine-safe thanks to the per-connection write mutex.
func (s *Server) Send(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("server: connection %s not found", connID)
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	err := c.WriteMessage(data)
	_ = c.Conn.SetWriteDeadline(time.Time{})
	return err
}

// Connections returns the ConnectionManager for external access to
// connection state (e.g., by the heartbeat or the presence layer).
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Rooms returns the RoomRegistry so handlers can manage room subscriptions
// and fan out events.
func (s *Server) Rooms() *RoomRegistry {
	return s.rooms
}

// Shutdown stops the heartbeat and closes all active connections. The HTTP
// listener is shut down separately by its owner.
func (s *Server) Shutdown() {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
		close(s.done)
	}
	s.mu.Unlock()

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}
	log.Printf("server: stopped, all connections closed")
}
