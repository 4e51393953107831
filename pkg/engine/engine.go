// Package engine keeps a shared store consistent with a project room on the
// collaboration server.
//
// The Engine owns the connection lifecycle: it authenticates every transport
// it is given, tracks the single subscribed project room and applies inbound
// entity events to the store. All state changes go through Transition and all
// work, including inbound handlers, runs on one dispatch goroutine, so store
// mutations made by the engine are serialized.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/metrics"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/notify"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/store"
)

const (
	// DefaultEmitTimeout bounds a single outbound message.
	DefaultEmitTimeout = 5 * time.Second
	// DefaultConnectTimeout bounds the initial transport connect.
	DefaultConnectTimeout = 10 * time.Second
)

// ErrClosed is returned by Close when the engine was already closed.
var ErrClosed = errors.New("engine closed")

// Option configures an Engine.
type Option func(e *Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithPurgeOnLeave controls whether the entities of a project are removed
// from the store when its room is left. It defaults to true.
func WithPurgeOnLeave(purge bool) Option {
	return func(e *Engine) {
		e.purgeOnLeave = purge
	}
}

func WithEmitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.emitTimeout = d
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.connectTimeout = d
	}
}

// task is one unit of work for the dispatch goroutine: either a state
// machine event or an inbound message.
type task struct {
	event Event
	msg   protocol.Message
}

type Engine struct {
	conn    connection.Conn
	store   store.Store
	logger  logger.Logger
	metrics *metrics.Metrics

	purgeOnLeave   bool
	emitTimeout    time.Duration
	connectTimeout time.Duration

	comments    *notify.Bus[models.Comment]
	transitions *notify.Bus[State]

	// ctx is canceled by Close to abandon in-flight connects.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the queue and the published state. The queue is unbounded
	// so that enqueueing never blocks the connection's goroutines.
	mu     sync.Mutex
	queue  []task
	wake   chan struct{}
	state  State
	closed bool
	done   chan struct{}

	subs []*connection.Subscription
}

// New creates an engine on conn and starts its dispatch goroutine.
// The engine does not connect until Connect is called.
func New(conn connection.Conn, st store.Store, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		conn:           conn,
		store:          st,
		purgeOnLeave:   true,
		emitTimeout:    DefaultEmitTimeout,
		connectTimeout: DefaultConnectTimeout,
		ctx:            ctx,
		cancel:         cancel,
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Discard()
	}

	e.comments = notify.NewBus[models.Comment]("comments", e.logger, e.metrics)
	e.transitions = notify.NewBus[State]("engine-transitions", e.logger, e.metrics)
	e.metrics.SetEnginePhase(int(PhaseDisconnected))

	e.subs = append(e.subs,
		conn.Subscribe(func(msg protocol.Message) {
			e.enqueue(task{msg: msg})
		}, connection.Events(protocol.ProjectEvents...)),
		conn.OnLifecycle(e.onLifecycle),
	)

	go e.run()

	return e
}

// Connect starts connecting as userID. It returns immediately; the engine
// becomes usable once the server acknowledges authentication.
// Calling it while connecting or connected does nothing.
func (e *Engine) Connect(userID string) {
	e.enqueue(task{event: ConnectRequested{UserID: userID}})
}

// Disconnect leaves the current room, closes the transport and forgets the
// user. It is safe to call when not connected.
func (e *Engine) Disconnect() {
	e.enqueue(task{event: DisconnectRequested{}})
}

// JoinProject subscribes to the project's room, leaving the current one
// first. A join requested before authentication is sent after it.
func (e *Engine) JoinProject(projectID string) {
	e.enqueue(task{event: JoinRequested{ProjectID: projectID}})
}

// LeaveProject leaves the room if it is the current one.
func (e *Engine) LeaveProject(projectID string) {
	e.enqueue(task{event: LeaveRequested{ProjectID: projectID}})
}

// State returns the last applied state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Connected reports whether the connection is authenticated.
func (e *Engine) Connected() bool {
	return e.State().Usable()
}

// Room returns the project the engine is subscribed, or about to
// subscribe, to.
func (e *Engine) Room() string {
	return e.State().Room
}

// Comments subscribes to comments pushed by the server.
func (e *Engine) Comments() (<-chan models.Comment, func()) {
	return e.comments.Subscribe()
}

// Transitions subscribes to state changes.
func (e *Engine) Transitions() (<-chan State, func()) {
	return e.transitions.Subscribe()
}

// Close disconnects, stops the dispatch goroutine and closes the connection.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	for _, sub := range e.subs {
		sub.Unsubscribe()
	}
	e.queue = append(e.queue, task{event: DisconnectRequested{}})
	e.closed = true
	e.mu.Unlock()
	e.signal()

	select {
	case <-e.done:
	case <-ctx.Done():
		e.logger.Warn("engine dispatch loop did not stop in time", "error", ctx.Err())
	}
	e.cancel()

	e.comments.Close()
	e.transitions.Close()

	if err := e.conn.Close(ctx); err != nil && !errors.Is(err, connection.ErrClosed) {
		e.logger.Debug("engine: closing the connection", "error", err)
	}
	return nil
}

func (e *Engine) onLifecycle(l connection.Lifecycle) {
	switch l {
	case connection.LifecycleOpened:
		e.enqueue(task{event: TransportOpened{}})
	case connection.LifecycleClosed:
		e.enqueue(task{event: TransportClosed{}})
	case connection.LifecycleFailed:
		e.enqueue(task{event: TransportFailed{}})
	}
}

func (e *Engine) enqueue(t task) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Debug("engine is closed, dropping task", "event", t.event, "message", t.msg)
		return
	}
	e.queue = append(e.queue, t)
	e.mu.Unlock()

	e.signal()
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.mu.Unlock()
			<-e.wake
			e.mu.Lock()
		}
		tasks := e.queue
		e.queue = nil
		closed := e.closed
		e.mu.Unlock()

		for _, t := range tasks {
			if t.event != nil {
				e.apply(t.event)
				continue
			}
			e.handleMessage(t.msg)
		}

		if closed && len(tasks) == 0 {
			return
		}
	}
}

// apply runs one event through Transition and executes the effects in order.
// It must only be called from the dispatch goroutine.
func (e *Engine) apply(ev Event) {
	prev := e.currentState()
	next, effects := Transition(prev, ev)

	if next != prev {
		e.mu.Lock()
		e.state = next
		e.mu.Unlock()

		e.logger.Debug("engine transition",
			"event", ev.String(),
			"from", prev.Phase.String(),
			"to", next.Phase.String(),
			"room", next.Room,
		)
		e.metrics.SetEnginePhase(int(next.Phase))
		e.transitions.Publish(next)
	}

	for _, eff := range effects {
		e.execute(eff)
	}
}

func (e *Engine) currentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *Engine) execute(eff Effect) {
	switch eff := eff.(type) {
	case OpenTransport:
		e.openTransport()
	case CloseTransport:
		ctx, cancel := context.WithTimeout(e.ctx, e.emitTimeout)
		defer cancel()
		if err := e.conn.Disconnect(ctx); err != nil {
			e.logger.Debug("engine: disconnecting the transport", "error", err)
		}
	case EmitAuthenticate:
		e.emit(protocol.Authenticate{UserID: eff.UserID})
	case EmitJoin:
		e.emit(protocol.JoinProject{ProjectID: eff.ProjectID})
	case EmitLeave:
		e.emit(protocol.LeaveProject{ProjectID: eff.ProjectID})
	case PurgeProject:
		if !e.purgeOnLeave {
			return
		}
		if err := e.store.PurgeProject(eff.ProjectID); err != nil {
			e.logger.Error("engine: failed to purge project", "project", eff.ProjectID, "error", err)
			return
		}
		e.metrics.AddStoreMutation(string(store.ChangePurge))
	default:
		e.logger.Warn("BUG: engine: unknown effect", "effect", eff.String())
	}
}

// openTransport connects in the background. The outcome comes back as a
// lifecycle event.
func (e *Engine) openTransport() {
	if e.conn.Connected() {
		// Another owner already connected the shared transport.
		e.enqueue(task{event: TransportOpened{}})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, e.connectTimeout)
		defer cancel()

		// A failed first dial keeps being retried by the connection. The
		// engine stays connecting until it is opened or reported failed.
		if err := e.conn.Connect(ctx); err != nil {
			e.logger.Warn("engine: failed to open the transport", "error", err)
		}
	}()
}

// emit sends msg, logging instead of returning failures.
func (e *Engine) emit(msg protocol.Message) {
	ctx, cancel := context.WithTimeout(e.ctx, e.emitTimeout)
	defer cancel()

	err := e.conn.Emit(ctx, msg)
	switch {
	case err == nil:
	case errors.Is(err, connection.ErrNotConnected):
		e.logger.Debug("engine: not connected, message dropped", "event", msg.Event().String())
	default:
		e.logger.Warn("engine: failed to send message", "event", msg.Event().String(), "error", err)
	}
}
