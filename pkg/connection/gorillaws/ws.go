// Package gorillaws implements connection.Transport over gorilla/websocket.
package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
)

// DefaultDialer is the default gorilla dialer used by Connection.
//
// It uses the default gorilla dialer with EnableCompression set to true.
// The subprotocol is set per connection from the codec name.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

type Option func(ws *Connection) error

const (
	// StateUnknown is intentionally the zero value of State,
	// so that we can detect a Connection built without New.
	StateUnknown State = iota
	// StatePending is the initial state before Connect is called.
	StatePending
	// StateConnecting indicates that the dial is in progress.
	StateConnecting
	// StateConnected indicates that the socket is established and the read loop runs.
	StateConnected
	// StateDisconnecting indicates that Close is in progress.
	StateDisconnecting
	// StateDisconnected indicates that the socket was closed, either manually
	// or due to a read error. It can transition to StateConnecting again.
	StateDisconnected
)

// State represents the state of the websocket.
//
// We assume the following state transitions:
//
//	StatePending -> StateConnecting
//	StateConnecting -> StateConnected | StateDisconnected
//	StateConnected -> StateDisconnecting | StateDisconnected
//	StateDisconnecting -> StateDisconnected
//	StateDisconnected -> StateConnecting
type State int

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

type Connection struct {
	URL    string
	Dialer *gorilla.Dialer

	Conn *gorilla.Conn
	// connLock is used to ensure that the Conn is not-nil when we try to write to it.
	//
	// It is not taken while dialing, so that concurrent writes to a failed
	// connection return immediately instead of waiting for the dial.
	connLock sync.Mutex

	// stateLock guards state. It is separate from connLock for the same reason.
	stateLock sync.RWMutex
	state     State

	// WriteTimeout bounds a write when the caller's context has no deadline.
	WriteTimeout time.Duration

	codec    codec.Codec
	msgType  int
	messages chan []byte

	Option []Option
	logger logger.Logger

	// connCloseCh signals that the connection is being closed.
	connCloseCh chan int

	connCloseError error
}

var _ connection.Transport = (*Connection)(nil)

func New(p *connection.Config) *Connection {
	msgType := gorilla.TextMessage
	if p.Codec.Binary() {
		msgType = gorilla.BinaryMessage
	}

	log := p.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Connection{
		URL:          p.URL.String(),
		Dialer:       DefaultDialer,
		WriteTimeout: connection.DefaultWriteTimeout,
		codec:        p.Codec,
		msgType:      msgType,
		logger:       log,
		state:        StatePending,
	}
}

func (ws *Connection) Connect(ctx context.Context) error {
	return ws.tryConnecting(ctx)
}

// IsClosed reports whether the socket is disconnected, so that the owner can
// decide to reconnect.
func (ws *Connection) IsClosed() bool {
	ws.stateLock.RLock()
	defer ws.stateLock.RUnlock()

	return ws.state == StateDisconnected
}

// State returns the current state of the socket.
func (ws *Connection) State() State {
	ws.stateLock.RLock()
	defer ws.stateLock.RUnlock()

	return ws.state
}

// Messages returns the inbound channel of the current socket.
// It is closed when the read loop exits.
func (ws *Connection) Messages() <-chan []byte {
	ws.connLock.Lock()
	defer ws.connLock.Unlock()

	return ws.messages
}

func (ws *Connection) setState(s State) {
	ws.stateLock.Lock()
	defer ws.stateLock.Unlock()

	ws.state = s
}

func (ws *Connection) transitionToConnecting() error {
	ws.stateLock.Lock()
	defer ws.stateLock.Unlock()

	switch ws.state {
	case StateConnected:
		ws.logger.Debug("gorillaws.Connection is already connected, skipping")
		return errors.New("gorillaws.Connection is already connected")
	case StateConnecting:
		ws.logger.Debug("gorillaws.Connection is already connecting, skipping")
		return errors.New("gorillaws.Connection is already connecting")
	case StateDisconnecting:
		return errors.New("gorillaws.Connection is disconnecting")
	case StateDisconnected:
		ws.logger.Debug("gorillaws.Connection is disconnected, trying to reconnect")
	case StatePending:
		ws.logger.Debug("gorillaws.Connection is pending, trying to connect")
	default:
		ws.logger.Warn("BUG: gorillaws.Connection is in an unknown state, trying to connect anyway",
			"state", ws.state,
		)
	}

	ws.state = StateConnecting

	return nil
}

func (ws *Connection) transitionToDisconnecting() error {
	ws.stateLock.Lock()
	defer ws.stateLock.Unlock()

	switch ws.state {
	case StateConnected:
		ws.logger.Debug("gorillaws.Connection is connected, trying to disconnect")
	case StateConnecting:
		return errors.New("gorillaws.Connection is connecting, cannot disconnect")
	case StateDisconnected:
		return connection.ErrClosed
	case StatePending:
		return errors.New("gorillaws.Connection is pending, no need to disconnect")
	default:
		return fmt.Errorf("gorillaws.Connection is in state %v, nothing to do", ws.state)
	}

	ws.state = StateDisconnecting

	return nil
}

func (ws *Connection) tryConnecting(ctx context.Context) error {
	if err := ws.transitionToConnecting(); err != nil {
		return err
	}

	if err := ws.connect(ctx); err != nil {
		ws.setState(StateDisconnected)
		ws.logger.Error("failed to connect gorillaws.Connection", "url", ws.URL, "error", err)
		return err
	}

	ws.setState(StateConnected)
	ws.logger.Debug("gorillaws.Connection is connected", "url", ws.URL)

	return nil
}

// connect dials the server. It must only be called from tryConnecting.
func (ws *Connection) connect(ctx context.Context) error {
	dialer := *ws.Dialer
	dialer.Subprotocols = []string{ws.codec.Name()}

	conn, res, err := dialer.DialContext(ctx, ws.URL, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	ws.connLock.Lock()
	defer ws.connLock.Unlock()

	ws.Conn = conn

	for _, option := range ws.Option {
		if err := option(ws); err != nil {
			return err
		}
	}

	ws.connCloseCh = make(chan int)
	ws.connCloseError = nil
	ws.messages = make(chan []byte, connection.MessageBufferSize)

	// The read loop runs until the socket fails or Close is called.
	go ws.readLoop(conn, ws.messages, ws.connCloseCh)

	return nil
}

func (ws *Connection) SetWriteTimeout(timeout time.Duration) *Connection {
	ws.WriteTimeout = timeout
	return ws
}

func (ws *Connection) Logger(logData logger.Logger) *Connection {
	ws.logger = logData
	return ws
}

func (ws *Connection) SetCompression(compress bool) *Connection {
	ws.Option = append(ws.Option, func(ws *Connection) error {
		ws.Conn.EnableWriteCompression(compress)
		return nil
	})
	return ws
}

// Close sends a close frame and closes the socket.
//
// The context bounds the close frame write. If it is canceled the socket is
// still closed locally.
func (ws *Connection) Close(ctx context.Context) error {
	if err := ws.transitionToDisconnecting(); err != nil {
		return err
	}
	// The socket is considered gone whether or not the close frame made it out.
	defer ws.setState(StateDisconnected)

	close(ws.connCloseCh)

	ws.connLock.Lock()
	defer ws.connLock.Unlock()

	conn := ws.Conn
	ws.Conn = nil
	if conn == nil {
		// The read loop already lost the socket.
		return nil
	}

	// Phase 1: try to let the server know.
	writeErr := make(chan error, 1)

	go func() {
		if deadline, ok := ctx.Deadline(); ok {
			if err := conn.SetWriteDeadline(deadline); err != nil {
				writeErr <- fmt.Errorf("BUG: gorillaws.Connection.Close: failed to set write deadline: %w", err)
				return
			}
		}

		err := conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(connection.CloseMessageCode, ""))

		select {
		case writeErr <- err:
		case <-ctx.Done():
		}
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			ws.logger.Error("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}

	// Phase 2: close the socket locally regardless of phase 1.
	return conn.Close()
}

// Write sends one frame. The frame type follows the codec: text for JSON,
// binary for CBOR.
func (ws *Connection) Write(ctx context.Context, data []byte) error {
	select {
	case <-ws.closeCh():
		return ws.closeError()
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ws.connLock.Lock()
	defer ws.connLock.Unlock()

	if ws.Conn == nil {
		if ws.connCloseError != nil {
			return fmt.Errorf("%w: %v", connection.ErrNotConnected, ws.connCloseError)
		}
		return connection.ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok && ws.WriteTimeout > 0 {
		deadline, ok = time.Now().Add(ws.WriteTimeout), true
	}
	if ok {
		if err := ws.Conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer func() {
			_ = ws.Conn.SetWriteDeadline(time.Time{})
		}()
	}

	return ws.Conn.WriteMessage(ws.msgType, data)
}

func (ws *Connection) closeCh() chan int {
	ws.connLock.Lock()
	defer ws.connLock.Unlock()
	return ws.connCloseCh
}

func (ws *Connection) closeError() error {
	ws.connLock.Lock()
	defer ws.connLock.Unlock()
	if ws.connCloseError != nil {
		return ws.connCloseError
	}
	return connection.ErrClosed
}

func (ws *Connection) readLoop(conn *gorilla.Conn, messages chan<- []byte, closeCh chan int) {
	defer close(messages)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// gorilla returns the same error forever once a read failed,
			// so every read error ends the loop.
			ws.handleError(conn, err, closeCh)
			return
		}

		select {
		case messages <- data:
		case <-closeCh:
			return
		}
	}
}

// handleError records why the socket went away and marks it disconnected,
// unless Close is already taking care of that.
func (ws *Connection) handleError(conn *gorilla.Conn, err error, closeCh chan int) {
	select {
	case <-closeCh:
		return
	default:
	}

	ws.connLock.Lock()
	if ws.Conn != conn {
		ws.connLock.Unlock()
		return
	}
	switch {
	case errors.Is(err, net.ErrClosed):
		ws.connCloseError = net.ErrClosed
	case gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway):
		ws.connCloseError = connection.ErrClosed
	case gorilla.IsUnexpectedCloseError(err):
		ws.connCloseError = io.ErrClosedPipe
	default:
		ws.connCloseError = err
	}
	_ = conn.Close()
	ws.Conn = nil
	ws.connLock.Unlock()

	ws.setState(StateDisconnected)
	ws.logger.Info("gorillaws.Connection readLoop: connection lost", "error", err)
}
