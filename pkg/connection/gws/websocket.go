// Package gws implements connection.Transport over lxzan/gws.
package gws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lxzan/gws"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
)

// DefaultHandshakeTimeout is used when the Connect context has no deadline.
const DefaultHandshakeTimeout = 10 * time.Second

type GwsConnection struct {
	addr   string
	codec  codec.Codec
	opcode gws.Opcode
	logger logger.Logger

	conn     *gws.Conn
	messages chan []byte
	connLock sync.Mutex

	WriteTimeout time.Duration

	connCloseCh    chan struct{}
	connCloseError error
}

var _ connection.Transport = (*GwsConnection)(nil)

type websocketHandler struct {
	gws.BuiltinEventHandler

	conn     *GwsConnection
	messages chan []byte
	closeCh  chan struct{}
}

func (h *websocketHandler) OnClose(socket *gws.Conn, err error) {
	h.conn.connLock.Lock()
	defer h.conn.connLock.Unlock()

	select {
	case <-h.closeCh:
	default:
		close(h.closeCh)
		h.conn.connCloseError = err
	}
	if h.conn.conn == socket {
		h.conn.conn = nil
	}
	close(h.messages)

	h.conn.logger.Info("gws.Connection closed", "error", err)
}

func (h *websocketHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	// Bytes is only valid until Close, so keep a copy.
	data := append([]byte(nil), message.Bytes()...)
	select {
	case h.messages <- data:
	case <-h.closeCh:
	}
}

func New(p *connection.Config) *GwsConnection {
	opcode := gws.OpcodeText
	if p.Codec.Binary() {
		opcode = gws.OpcodeBinary
	}

	log := p.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &GwsConnection{
		addr:         p.URL.String(),
		codec:        p.Codec,
		opcode:       opcode,
		logger:       log,
		WriteTimeout: connection.DefaultWriteTimeout,
	}
}

// Connect implements connection.Transport.
func (c *GwsConnection) Connect(ctx context.Context) error {
	c.connLock.Lock()
	if c.conn != nil {
		c.connLock.Unlock()
		return errors.New("gws.Connection is already connected")
	}
	c.connLock.Unlock()

	timeout := DefaultHandshakeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	handler := &websocketHandler{
		conn:     c,
		messages: make(chan []byte, connection.MessageBufferSize),
		closeCh:  make(chan struct{}),
	}

	option := &gws.ClientOption{
		Addr: c.addr,
		RequestHeader: http.Header{
			"Sec-WebSocket-Protocol": []string{c.codec.Name()},
		},
		HandshakeTimeout: timeout,
		PermessageDeflate: gws.PermessageDeflate{
			Enabled: true,
		},
	}

	conn, res, err := gws.NewClient(handler, option)
	if err != nil {
		return fmt.Errorf("gws.Connection failed to dial %s: %w", c.addr, err)
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}

	c.connLock.Lock()
	c.conn = conn
	c.messages = handler.messages
	c.connCloseCh = handler.closeCh
	c.connCloseError = nil
	c.connLock.Unlock()

	go conn.ReadLoop()

	return nil
}

// Messages implements connection.Transport.
func (c *GwsConnection) Messages() <-chan []byte {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	return c.messages
}

// IsClosed implements connection.Transport.
func (c *GwsConnection) IsClosed() bool {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	return c.conn == nil
}

// Write implements connection.Transport.
func (c *GwsConnection) Write(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.connLock.Lock()
	conn := c.conn
	c.connLock.Unlock()

	if conn == nil {
		return connection.ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.WriteTimeout > 0 {
		deadline, ok = time.Now().Add(c.WriteTimeout), true
	}
	if ok {
		if err := conn.NetConn().SetWriteDeadline(deadline); err != nil {
			return err
		}
	}

	return conn.WriteMessage(c.opcode, data)
}

// Close implements connection.Transport.
func (c *GwsConnection) Close(ctx context.Context) error {
	c.connLock.Lock()
	conn := c.conn
	c.conn = nil
	c.connLock.Unlock()

	if conn == nil {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.NetConn().SetWriteDeadline(deadline)
	}
	// WriteClose sends the close frame and tears the socket down; ReadLoop
	// then reports OnClose.
	conn.WriteClose(connection.CloseMessageCode, nil)
	_ = conn.NetConn().Close()

	return nil
}
