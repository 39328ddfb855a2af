package client

import (
	"context"
	"log"
	"sync"

	"github.com/connect/chat-app/internal/chat"
)

// Binding ties the chat connection's lifecycle to the presence of an access
// token: the connection exists exactly while a token does. It reacts only to
// token presence and absence — retry and backoff are not its concern, and it
// raises no user-facing errors of its own.
type Binding struct {
	mu     sync.Mutex
	url    string
	store  *chat.State
	client *Client
	token  string

	// dial is swapped out in tests.
	dial func(ctx context.Context, cfg Config) (*Client, error)
}

// NewBinding creates a binding for the given endpoint and store. No
// connection exists until a token is supplied.
func NewBinding(url string, store *chat.State) *Binding {
	return &Binding{
		url:   url,
		store: store,
		dial:  Dial,
	}
}

// SetToken reacts to a token becoming present or changing. Any previous
// connection is fully torn down first — listeners deregistered, connection
// closed — so stale handlers can never double-dispatch into the store. Then a
// new connection is opened with the token as credential and the listener
// registration pass runs exactly once for it.
//
// If the handshake fails, no connection exists, the store is left untouched,
// and the error is returned for whatever UI flow cares to notice.
func (b *Binding) SetToken(ctx context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.teardown()
	b.token = token
	if token == "" {
		return nil
	}

	c, err := b.dial(ctx, DefaultConfig(b.url, token))
	if err != nil {
		log.Printf("[binding] connect failed: %v", err)
		return err
	}

	RegisterListeners(c, b.store)
	b.client = c
	log.Printf("[binding] connected to %s", b.url)
	return nil
}

// ClearToken reacts to the token becoming absent (logout, refresh failure):
// the connection is closed and all listeners are deregistered.
func (b *Binding) ClearToken() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardown()
	b.token = ""
}

// Client returns the live connection, or nil while unauthenticated or after
// a failed handshake. Callers use it to reach the emitters.
func (b *Binding) Client() *Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

func (b *Binding) teardown() {
	if b.client == nil {
		return
	}
	b.client.Off()
	if err := b.client.Close(); err != nil {
		log.Printf("[binding] close error: %v", err)
	}
	b.client = nil
}
