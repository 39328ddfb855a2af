// Package client implements the chat connection consumed by the Connect UI:
// the token-bound transport, the outbound event emitters, the inbound
// listener registry, and the REST calls that seed the state store.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/connect/chat-app/internal/protocol"
)

// Config holds connection settings for a single chat connection.
type Config struct {
	URL         string        // ws:// or wss:// endpoint
	Token       string        // access token, sent as the connection credential
	DialTimeout time.Duration // handshake timeout
}

// DefaultConfig returns connection defaults for the given endpoint and token.
func DefaultConfig(url, token string) Config {
	return Config{
		URL:         url,
		Token:       token,
		DialTimeout: 10 * time.Second,
	}
}

// Client is a live chat connection. It owns a background read loop that
// parses inbound envelopes and dispatches their raw payloads to registered
// handlers. Emits are fire-and-forget: they neither block on nor await any
// acknowledgment from the server.
type Client struct {
	conn      net.Conn
	writeMu   sync.Mutex
	hmu       sync.RWMutex
	handlers  map[string]func(json.RawMessage)
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens a chat connection authenticated with cfg.Token (sent as a bearer
// credential during the handshake) and starts the read loop. If the handshake
// fails no connection exists and nothing has been dispatched.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.Token)
	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(header),
	}

	conn, _, _, err := dialer.Dial(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.URL, err)
	}

	c := newClient(conn)
	go c.readLoop()
	return c, nil
}

func newClient(conn net.Conn) *Client {
	return &Client{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
}

// On registers a handler for a server event. The handler receives the raw
// payload bytes and is invoked from the read loop goroutine, so it should not
// block. One handler per event; registering again replaces the previous one.
func (c *Client) On(event string, handler func(json.RawMessage)) {
	c.hmu.Lock()
	c.handlers[event] = handler
	c.hmu.Unlock()
}

// Off deregisters all handlers. Called when the connection is torn down so a
// stale registration can never double-dispatch into the store.
func (c *Client) Off() {
	c.hmu.Lock()
	c.handlers = make(map[string]func(json.RawMessage))
	c.hmu.Unlock()
}

// Emit sends one named event with the given payload. It is goroutine-safe
// and does not retry; a write error surfaces to the caller and is otherwise
// forgotten.
func (c *Client) Emit(event string, payload interface{}) error {
	data, err := protocol.NewEvent(event, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Close closes the connection and stops the read loop. Safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection has terminated, either by Close or by a
// read failure.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// readLoop reads frames until the connection closes, parses each envelope,
// and dispatches the raw payload to the handler registered for its event.
// Malformed envelopes are logged and dropped; the loop keeps running.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			log.Printf("[client] read error, closing connection: %v", err)
			_ = c.Close()
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			log.Printf("[client] dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(env.Event, env.Data)
	}
}

func (c *Client) dispatch(event string, data json.RawMessage) {
	c.hmu.RLock()
	handler := c.handlers[event]
	c.hmu.RUnlock()
	if handler != nil {
		handler(data)
	}
}
