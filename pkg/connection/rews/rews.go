// Package rews provides a reconnecting connection.Conn on top of any
// connection.Transport.
package rews

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/metrics"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
)

const (
	// DefaultCheckInterval is how often the transport is polled when no
	// loss signal arrives.
	DefaultCheckInterval = 5 * time.Second
	// DefaultDialTimeout bounds a single reconnection attempt.
	DefaultDialTimeout = 10 * time.Second
)

type State int

const (
	StateUnknown State = iota
	StateDisconnected
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "InvalidState"
	}
}

func (s State) validateTransitionTo(newState State) error {
	switch s {
	case StateDisconnected:
		switch newState {
		case StateConnecting, StateDisconnected, StateClosing:
			return nil
		}
	case StateConnecting:
		switch newState {
		case StateConnected, StateDisconnected, StateClosing:
			return nil
		}
	case StateConnected:
		switch newState {
		// Connected to Connecting happens when the transport is lost.
		case StateConnecting, StateDisconnected, StateClosing:
			return nil
		}
	case StateClosing:
		if newState == StateClosed {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition from %v to %v", s, newState)
}

// Connection keeps one transport open and replaces it when it is lost.
//
// Inbound frames of whichever transport is current are decoded and fanned
// out by the embedded Dispatcher. Lifecycle handlers see LifecycleOpened
// after every successful (re)connect, LifecycleClosed when an open transport
// goes away and LifecycleFailed when the retryer gives up. Handlers run on
// the goroutine that observed the change and must not call Disconnect or
// Close themselves.
type Connection struct {
	*connection.Dispatcher

	// NewFunc creates a fresh transport for the initial connect and for
	// every reconnection attempt.
	NewFunc func(context.Context) (connection.Transport, error)

	// CheckInterval is the interval at which the transport is polled in
	// addition to the loss signal of its read side.
	CheckInterval time.Duration

	// DialTimeout bounds each reconnection attempt.
	DialTimeout time.Duration

	// WriteTimeout bounds Emit when the context has no deadline.
	WriteTimeout time.Duration

	retryer   Retryer
	marshaler codec.Marshaler
	logger    logger.Logger
	metrics   *metrics.Metrics

	state   State
	stateMu sync.Mutex

	transport   connection.Transport
	transportMu sync.RWMutex

	// lostCh is signaled by the pump of the current transport when its
	// read side ends.
	lostCh chan struct{}

	// loopMu serializes starting and stopping the reconnection loop with
	// the state changes that decide whether it should run.
	loopMu   sync.Mutex
	loopStop chan struct{}
	loopDone chan struct{}
}

var _ connection.Conn = (*Connection)(nil)

// New creates a reconnecting connection. A nil retryer selects DefaultRetryer.
func New(
	newTransport func(context.Context) (connection.Transport, error),
	p *connection.Config,
	retryer Retryer,
) *Connection {
	if retryer == nil {
		retryer = DefaultRetryer()
	}
	log := p.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Connection{
		Dispatcher:    connection.NewDispatcher(p.Codec, log, p.Metrics),
		NewFunc:       newTransport,
		CheckInterval: DefaultCheckInterval,
		DialTimeout:   DefaultDialTimeout,
		WriteTimeout:  connection.DefaultWriteTimeout,
		retryer:       retryer,
		marshaler:     p.Codec,
		logger:        log,
		metrics:       p.Metrics,
		state:         StateDisconnected,
		lostCh:        make(chan struct{}, 1),
	}
}

func (c *Connection) transitionTo(newState State) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if err := c.state.validateTransitionTo(newState); err != nil {
		return err
	}

	c.state = newState
	c.logger.Debug("rews.Connection state transitioned", "new_state", newState)

	return nil
}

// swapState moves from old to newState only if the current state is old.
func (c *Connection) swapState(old, newState State) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state != old {
		return false
	}
	c.state = newState
	c.logger.Debug("rews.Connection state transitioned", "new_state", newState)
	return true
}

// State returns the current state.
func (c *Connection) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	return c.state
}

// Connected reports whether a transport is open and usable.
func (c *Connection) Connected() bool {
	return c.State() == StateConnected
}

// IsClosed returns true once Close has completed. A closed connection
// cannot connect again.
func (c *Connection) IsClosed() bool {
	return c.State() == StateClosed
}

// Connect opens the first transport and starts the reconnection loop.
//
// A failed first attempt is returned, but the connection keeps dialing in the
// background as the retryer allows. LifecycleOpened follows once an attempt
// succeeds and LifecycleFailed once the retryer gives up.
func (c *Connection) Connect(ctx context.Context) error {
	if err := c.transitionTo(StateConnecting); err != nil {
		return err
	}

	t, err := c.dial(ctx)
	if err != nil {
		c.metrics.AddReconnect(metrics.ResultFailure)
		c.logger.Warn("rews.Connection failed to connect, retrying", "error", err)

		c.loopMu.Lock()
		// Disconnect or Close during the dial cancels the retries.
		if c.State() == StateConnecting {
			c.startLoopLocked(err)
		}
		c.loopMu.Unlock()

		return fmt.Errorf("rews.Connection failed to connect: %w", err)
	}

	c.loopMu.Lock()
	err = c.transitionTo(StateConnected)
	if err == nil {
		c.logger.Info("rews.Connection connected")
		// Opened is reported before the loop can report the loss of t.
		c.Notify(connection.LifecycleOpened)
		c.startLoopLocked(nil)
	}
	c.loopMu.Unlock()

	if err != nil {
		// Disconnect or Close won the race against the dial.
		_ = c.dropTransportIf(ctx, t)
		return fmt.Errorf("rews.Connection: %w", connection.ErrClosed)
	}

	return nil
}

// Disconnect stops reconnecting and closes the current transport.
// The connection can be connected again afterwards.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.loopMu.Lock()
	stop, done := c.takeLoopLocked()
	wasConnected := c.Connected()
	err := c.transitionTo(StateDisconnected)
	c.loopMu.Unlock()

	if err != nil {
		return fmt.Errorf("rews.Connection cannot disconnect: %w", err)
	}

	stopLoop(stop, done)

	if err := c.dropTransport(ctx); err != nil {
		c.logger.Warn("rews.Connection failed to close the transport", "error", err)
	}
	if wasConnected {
		c.Notify(connection.LifecycleClosed)
	}

	return nil
}

// Close stops the reconnection loop and closes the transport for good.
//
// Once this function returns, the reconnection loop is guaranteed to stop.
func (c *Connection) Close(ctx context.Context) error {
	c.loopMu.Lock()
	stop, done := c.takeLoopLocked()
	wasConnected := c.Connected()
	err := c.transitionTo(StateClosing)
	c.loopMu.Unlock()

	if err != nil {
		return fmt.Errorf("rews.Connection is already closing or closed: %w", err)
	}

	defer func() {
		if err := c.transitionTo(StateClosed); err != nil {
			c.logger.Error("BUG: rews.Connection failed to transition to closed state", "error", err)
		}
	}()

	stopLoop(stop, done)

	err = c.dropTransport(ctx)
	if wasConnected {
		c.Notify(connection.LifecycleClosed)
	}
	return err
}

// Emit encodes msg and writes it to the current transport.
func (c *Connection) Emit(ctx context.Context, msg protocol.Message) error {
	event := msg.Event().String()

	c.transportMu.RLock()
	t := c.transport
	c.transportMu.RUnlock()

	if !c.Connected() || t == nil {
		c.metrics.AddDroppedEmit(event)
		return fmt.Errorf("emit %s: %w", event, connection.ErrNotConnected)
	}

	data, err := protocol.Encode(c.marshaler, msg)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok && c.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.WriteTimeout)
		defer cancel()
	}

	if err := t.Write(ctx, data); err != nil {
		c.metrics.AddDroppedEmit(event)
		return fmt.Errorf("emit %s: %w", event, err)
	}

	c.metrics.AddOutboundEvent(event)
	return nil
}

// dial creates and connects a transport and makes it current.
func (c *Connection) dial(ctx context.Context) (connection.Transport, error) {
	// Drop a loss signal left over from a previous transport before the new
	// one can raise its own.
	select {
	case <-c.lostCh:
	default:
	}

	t, err := c.NewFunc(ctx)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}

	c.transportMu.Lock()
	old := c.transport
	c.transport = t
	c.transportMu.Unlock()

	if old != nil && !old.IsClosed() {
		go func() {
			_ = old.Close(context.Background())
		}()
	}

	go c.pump(t, t.Messages())

	return t, nil
}

// pump feeds inbound frames of t to the dispatcher until t's read side ends.
func (c *Connection) pump(t connection.Transport, messages <-chan []byte) {
	for data := range messages {
		c.Dispatch(data)
	}

	c.transportMu.RLock()
	current := c.transport == t
	c.transportMu.RUnlock()

	if current {
		select {
		case c.lostCh <- struct{}{}:
		default:
		}
	}
}

// dropTransportIf closes t and clears it if it is still current.
func (c *Connection) dropTransportIf(ctx context.Context, t connection.Transport) error {
	c.transportMu.Lock()
	if c.transport == t {
		c.transport = nil
	}
	c.transportMu.Unlock()

	if t.IsClosed() {
		return nil
	}
	return t.Close(ctx)
}

func (c *Connection) dropTransport(ctx context.Context) error {
	c.transportMu.Lock()
	t := c.transport
	c.transport = nil
	c.transportMu.Unlock()

	if t == nil || t.IsClosed() {
		return nil
	}
	return t.Close(ctx)
}

func (c *Connection) transportLost() bool {
	c.transportMu.RLock()
	defer c.transportMu.RUnlock()

	return c.transport == nil || c.transport.IsClosed()
}

// startLoopLocked starts the reconnection loop. A non-nil dialErr means the
// first dial failed and the loop starts by retrying it.
func (c *Connection) startLoopLocked(dialErr error) {
	stop, done := c.takeLoopLocked()
	stopLoop(stop, done)

	c.loopStop = make(chan struct{})
	c.loopDone = make(chan struct{})

	c.logger.Debug("rews.Connection is starting reconnection loop")
	go c.reconnectionLoop(c.loopStop, c.loopDone, dialErr)
}

func (c *Connection) takeLoopLocked() (chan struct{}, chan struct{}) {
	stop, done := c.loopStop, c.loopDone
	c.loopStop, c.loopDone = nil, nil
	return stop, done
}

func stopLoop(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Connection) reconnectionLoop(stop <-chan struct{}, done chan<- struct{}, dialErr error) {
	defer close(done)

	if dialErr != nil && !c.reconnect(stop, dialErr) {
		return
	}

	checkInterval := DefaultCheckInterval
	if c.CheckInterval > 0 {
		checkInterval = c.CheckInterval
	}

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.lostCh:
		case <-ticker.C:
			if !c.transportLost() {
				continue
			}
		}

		// A stale signal after Disconnect or during a reconnect is ignored.
		if !c.swapState(StateConnected, StateConnecting) {
			continue
		}

		c.logger.Warn("rews.Connection lost the transport, reconnecting")
		c.Notify(connection.LifecycleClosed)

		if !c.reconnect(stop, nil) {
			return
		}
	}
}

// reconnect retries dial as the retryer allows, starting from lastErr. It
// returns false when the loop should exit.
func (c *Connection) reconnect(stop <-chan struct{}, lastErr error) bool {
	for attempt := 0; ; attempt++ {
		delay, ok := c.retryer.NextDelay(attempt, lastErr)
		if !ok {
			c.logger.Error("rews.Connection gave up reconnecting",
				"attempts", attempt,
				"error", fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr))
			if err := c.transitionTo(StateDisconnected); err != nil {
				c.logger.Debug("rews.Connection state changed while reconnecting", "error", err)
			}
			_ = c.dropTransport(context.Background())
			c.Notify(connection.LifecycleFailed)
			return false
		}

		select {
		case <-stop:
			return false
		case <-time.After(delay):
		}

		c.logger.Info("rews.Connection is attempting to reconnect", "attempt", attempt+1)

		t, err := c.dialUntil(stop)
		if err != nil {
			lastErr = err
			c.metrics.AddReconnect(metrics.ResultFailure)
			c.logger.Warn("rews.Connection failed to reconnect", "attempt", attempt+1, "error", err)
			continue
		}

		if err := c.transitionTo(StateConnected); err != nil {
			// Disconnect or Close happened during the dial.
			_ = c.dropTransportIf(context.Background(), t)
			return false
		}

		c.retryer.Reset()
		c.metrics.AddReconnect(metrics.ResultSuccess)
		c.logger.Info("rews.Connection reconnected", "attempt", attempt+1)
		c.Notify(connection.LifecycleOpened)
		return true
	}
}

// dialUntil dials with DialTimeout, abandoning the attempt when stop closes.
func (c *Connection) dialUntil(stop <-chan struct{}) (connection.Transport, error) {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	return c.dial(ctx)
}
