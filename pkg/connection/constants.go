package connection

import (
	"errors"
	"time"
)

const (
	// CloseMessageCode is the websocket close code sent on a normal close.
	CloseMessageCode = 1000
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second
	// MessageBufferSize is the capacity of a transport's inbound channel.
	MessageBufferSize = 256
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection closed")
)

const (
	WebsocketScheme       = "ws"
	SecureWebsocketScheme = "wss"
)
