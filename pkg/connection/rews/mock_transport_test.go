package rews

import (
	"context"
	"errors"
	"sync"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection"
)

var errDialRefused = errors.New("dial refused")

// mockTransport is an in-memory connection.Transport.
type mockTransport struct {
	mu       sync.Mutex
	messages chan []byte
	written  [][]byte
	closed   bool
	failDial bool
}

func (m *mockTransport) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failDial {
		m.closed = true
		return errDialRefused
	}
	m.messages = make(chan []byte, 16)
	return nil
}

func (m *mockTransport) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return connection.ErrNotConnected
	}
	m.written = append(m.written, data)
	return nil
}

func (m *mockTransport) Messages() <-chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.messages
}

func (m *mockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

func (m *mockTransport) Close(context.Context) error {
	m.drop()
	return nil
}

// receive injects an inbound frame as if the server sent it.
func (m *mockTransport) receive(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.messages <- data
	}
}

// drop simulates the socket going away.
func (m *mockTransport) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.messages)
	}
}

func (m *mockTransport) frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([][]byte(nil), m.written...)
}

// mockDialer hands out mockTransports and records them.
type mockDialer struct {
	mu         sync.Mutex
	transports []*mockTransport
	refuse     bool
}

func (d *mockDialer) newTransport(context.Context) (connection.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := &mockTransport{failDial: d.refuse}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *mockDialer) setRefuse(refuse bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.refuse = refuse
}

func (d *mockDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.transports)
}

func (d *mockDialer) last() *mockTransport {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.transports[len(d.transports)-1]
}
