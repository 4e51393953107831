// Package mock provides an in-memory connection.Conn for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
)

// ErrAlreadyConnected is returned by Connect on a connected Conn.
var ErrAlreadyConnected = errors.New("mock: already connected")

// Conn records every emitted message. Server pushes are injected with Push
// and the transport can be dropped and reopened at will.
type Conn struct {
	*connection.Dispatcher

	mu        sync.Mutex
	connected bool
	closed    bool
	refuse    error
	emitted   []protocol.Message
}

var _ connection.Conn = (*Conn)(nil)

func Create() *Conn {
	return &Conn{Dispatcher: connection.NewDispatcher(codec.NewJSON(), logger.Discard(), nil)}
}

// Connect marks the transport open and reports LifecycleOpened.
func (c *Conn) Connect(context.Context) error {
	c.mu.Lock()
	if c.refuse != nil {
		err := c.refuse
		c.mu.Unlock()
		return err
	}
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.connected = true
	c.mu.Unlock()

	c.Notify(connection.LifecycleOpened)
	return nil
}

func (c *Conn) Disconnect(context.Context) error {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()

	if was {
		c.Notify(connection.LifecycleClosed)
	}
	return nil
}

func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	return c.Disconnect(ctx)
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Conn) Emit(_ context.Context, msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return connection.ErrNotConnected
	}
	c.emitted = append(c.emitted, msg)
	return nil
}

// Sent returns the messages emitted so far.
func (c *Conn) Sent() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]protocol.Message(nil), c.emitted...)
}

// Reset forgets the emitted messages.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.emitted = nil
}

// Push delivers msg to subscribers as if the server sent it.
func (c *Conn) Push(msg protocol.Message) {
	c.Deliver(msg)
}

// Drop simulates losing the transport.
func (c *Conn) Drop() {
	_ = c.Disconnect(context.Background())
}

// Refuse makes Connect fail with err, as a dial that keeps being retried in
// the background, until Reopen.
func (c *Conn) Refuse(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refuse = err
}

// Reopen simulates a successful reconnect.
func (c *Conn) Reopen() {
	c.mu.Lock()
	c.refuse = nil
	c.mu.Unlock()

	_ = c.Connect(context.Background())
}
