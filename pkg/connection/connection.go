package connection

import (
	"context"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
)

// Transport is a single physical websocket.
//
// Implementations deliver every inbound message on the channel returned by
// Messages and close that channel when the read side stops, which is how the
// owner learns that the socket was lost.
type Transport interface {
	Connect(ctx context.Context) error
	Write(ctx context.Context, data []byte) error
	Messages() <-chan []byte
	IsClosed() bool
	Close(ctx context.Context) error
}

// Emitter sends messages to the server.
type Emitter interface {
	// Emit encodes msg and writes it to the transport.
	// It returns ErrNotConnected when there is no usable transport.
	Emit(ctx context.Context, msg protocol.Message) error
	Connected() bool
}

// Subscriber registers ingress and lifecycle handlers.
type Subscriber interface {
	Subscribe(h Handler, opts ...SubscribeOption) *Subscription
	OnLifecycle(l LifecycleHandler) *Subscription
}

// Conn is the shared connection consumed by the sync engine and document
// sessions. Only one physical transport exists per Conn.
type Conn interface {
	Emitter
	Subscriber

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Close(ctx context.Context) error
}

// Lifecycle is a change of the physical transport.
type Lifecycle int

const (
	// LifecycleOpened is reported after every successful (re)connect.
	LifecycleOpened Lifecycle = iota + 1
	// LifecycleClosed is reported when an open transport goes away,
	// whether or not a reconnect follows.
	LifecycleClosed
	// LifecycleFailed is reported when a connect attempt fails and no
	// further automatic attempt will be made.
	LifecycleFailed
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleOpened:
		return "opened"
	case LifecycleClosed:
		return "closed"
	case LifecycleFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleHandler observes transport lifecycle changes.
type LifecycleHandler func(Lifecycle)
