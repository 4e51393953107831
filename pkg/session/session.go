// Package session implements a collaborative editing session for one issue.
//
// A Session rides the shared connection owned by the sync engine. It keeps
// the roster of co-editors, their cursors and typing indicators, and hands
// edit operations, issue updates and conflicts to the editor without
// interpreting them. Events sent by the local user are filtered out by the
// connection before they reach the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/metrics"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/notify"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
)

// DefaultEmitTimeout bounds a single outbound message.
const DefaultEmitTimeout = 5 * time.Second

// ErrInvalidOptions is returned by New when Options fail validation.
var ErrInvalidOptions = errors.New("invalid session options")

// State is the lifecycle state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateJoined
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateTornDown:
		return "torn-down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options identify the document and the local user.
type Options struct {
	DocumentID string `validate:"required"`
	UserID     string `validate:"required"`
	UserName   string
	UserAvatar string

	// PresenceTTL evicts a participant, with its cursor and typing
	// indicators, when nothing was heard from it for this long.
	// Zero disables eviction.
	PresenceTTL time.Duration `validate:"gte=0"`
	// SweepInterval is how often expired participants are looked for.
	// It defaults to half of PresenceTTL.
	SweepInterval time.Duration `validate:"gte=0"`
}

// Option configures a Session.
type Option func(s *Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithEmitTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.emitTimeout = d
	}
}

// WithClock replaces time.Now, for presence expiry and operation stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithOnClose registers fn to run once, after the session is torn down.
func WithOnClose(fn func(*Session)) Option {
	return func(s *Session) {
		s.onClose = fn
	}
}

var optionsValidator = validator.New()

type Session struct {
	conn    connection.Conn
	opts    Options
	logger  logger.Logger
	metrics *metrics.Metrics

	emitTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	presence *presence
	changes  chan struct{}

	operations   *notify.Bus[models.EditOperation]
	issueUpdates *notify.Bus[protocol.DocumentUpdated]
	conflicts    *notify.Bus[models.Conflict]

	subs []*connection.Subscription

	stopSweep chan struct{}
	sweepDone chan struct{}

	onClose func(*Session)
}

// New opens a session on conn and emits the join request. The session is
// usable immediately; it does not wait for the server.
func New(conn connection.Conn, opts Options, options ...Option) (*Session, error) {
	if err := optionsValidator.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	s := &Session{
		conn:        conn,
		opts:        opts,
		emitTimeout: DefaultEmitTimeout,
		now:         time.Now,
		state:       StateUninitialized,
		presence:    newPresence(opts.UserID),
		changes:     make(chan struct{}, 1),
	}
	for _, o := range options {
		o(s)
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}

	stream := "document:" + opts.DocumentID
	s.operations = notify.NewBus[models.EditOperation](stream+":operations", s.logger, s.metrics)
	s.issueUpdates = notify.NewBus[protocol.DocumentUpdated](stream+":issue-updates", s.logger, s.metrics)
	s.conflicts = notify.NewBus[models.Conflict](stream+":conflicts", s.logger, s.metrics)

	s.setState(StateConnecting)
	s.subs = append(s.subs,
		conn.Subscribe(s.handle,
			connection.Events(protocol.DocumentEvents...),
			connection.ForDocument(opts.DocumentID),
			connection.ExcludeSender(opts.UserID),
		),
		conn.OnLifecycle(s.onLifecycle),
	)

	if opts.PresenceTTL > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = opts.PresenceTTL / 2
		}
		s.stopSweep = make(chan struct{})
		s.sweepDone = make(chan struct{})
		go s.sweepLoop(interval)
	}

	s.metrics.AddOpenSessions(1)
	s.join()

	return s, nil
}

// DocumentID returns the id of the edited issue.
func (s *Session) DocumentID() string {
	return s.opts.DocumentID
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Connected reflects the shared transport, not the join state.
func (s *Session) Connected() bool {
	return s.conn.Connected()
}

// Participants returns the remote users in the session.
func (s *Session) Participants() []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.presence.snapshotParticipants()
}

// Cursors returns one cursor per remote user.
func (s *Session) Cursors() []models.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.presence.snapshotCursors()
}

// Typing returns the typing indicators of remote users.
func (s *Session) Typing() []models.TypingIndicator {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.presence.snapshotTyping()
}

// Changes signals that participants, cursors, typing or the connected flag
// may have changed. Signals are coalesced. The channel is closed by Close.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Operations subscribes to edit operations of other users.
func (s *Session) Operations() (<-chan models.EditOperation, func()) {
	return s.operations.Subscribe()
}

// IssueUpdates subscribes to saved changes of the issue.
func (s *Session) IssueUpdates() (<-chan protocol.DocumentUpdated, func()) {
	return s.issueUpdates.Subscribe()
}

// Conflicts subscribes to conflicts reported by the server.
func (s *Session) Conflicts() (<-chan models.Conflict, func()) {
	return s.conflicts.Subscribe()
}

// UpdateCursor broadcasts the local caret. It does nothing when not
// connected and does not throttle.
func (s *Session) UpdateCursor(field string, position int) {
	s.emit(protocol.CursorUpdate{
		IssueID:  s.opts.DocumentID,
		UserID:   s.opts.UserID,
		UserName: s.opts.UserName,
		Field:    field,
		Position: position,
	})
}

// SendEditOperation stamps op with the local identity, the document, the
// current time and a fresh id, then broadcasts it. The stamped operation
// is returned whether or not it could be sent.
func (s *Session) SendEditOperation(op models.EditOperation) models.EditOperation {
	op.ID = xid.New().String()
	op.UserID = s.opts.UserID
	op.IssueID = s.opts.DocumentID
	op.Timestamp = s.now().UnixMilli()

	s.emit(protocol.EditOperation{EditOperation: op})
	return op
}

func (s *Session) StartTyping(field string) {
	s.emit(protocol.TypingStart{
		IssueID:  s.opts.DocumentID,
		UserID:   s.opts.UserID,
		UserName: s.opts.UserName,
		Field:    field,
	})
}

func (s *Session) StopTyping(field string) {
	s.emit(protocol.TypingStop{
		IssueID:  s.opts.DocumentID,
		UserID:   s.opts.UserID,
		UserName: s.opts.UserName,
		Field:    field,
	})
}

// Close leaves the document, detaches the session from the connection and
// clears its state. The shared connection stays open. Calling Close more
// than once is safe.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.conn.Connected() {
		emitCtx, cancel := context.WithTimeout(ctx, s.emitTimeout)
		err := s.conn.Emit(emitCtx, protocol.LeaveEditSession{
			IssueID: s.opts.DocumentID,
			UserID:  s.opts.UserID,
		})
		cancel()
		if err != nil {
			s.logger.Debug("session: leave not delivered", "document", s.opts.DocumentID, "error", err)
		}
	}

	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	if s.stopSweep != nil {
		close(s.stopSweep)
		<-s.sweepDone
	}

	s.mu.Lock()
	if s.state == StateTornDown {
		// A concurrent Close won.
		s.mu.Unlock()
		return nil
	}
	s.state = StateTornDown
	removed := s.presence.clear()
	close(s.changes)
	s.mu.Unlock()

	s.metrics.AddParticipants(-removed)
	s.metrics.AddOpenSessions(-1)

	s.operations.Close()
	s.issueUpdates.Close()
	s.conflicts.Close()

	if s.onClose != nil {
		s.onClose(s)
	}

	s.logger.Debug("session closed", "document", s.opts.DocumentID)
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateTornDown {
		s.state = state
	}
}

// join emits the join request. A successful emission counts as joined.
func (s *Session) join() {
	err := s.send(protocol.JoinEditSession{
		IssueID:    s.opts.DocumentID,
		UserID:     s.opts.UserID,
		UserName:   s.opts.UserName,
		UserAvatar: s.opts.UserAvatar,
	})
	if err != nil {
		s.logger.Debug("session: join not sent, waiting for the connection",
			"document", s.opts.DocumentID, "error", err)
		return
	}
	s.setState(StateJoined)
}

func (s *Session) onLifecycle(l connection.Lifecycle) {
	switch l {
	case connection.LifecycleOpened:
		// The server forgot the session with the old socket.
		s.join()
	case connection.LifecycleClosed, connection.LifecycleFailed:
		s.setState(StateConnecting)
	}
	s.notifyChange()
}

// emit sends a fire-and-forget message. Failures are logged, not returned.
func (s *Session) emit(msg protocol.Message) {
	if !s.conn.Connected() || s.State() == StateTornDown {
		s.logger.Debug("session: not connected, message dropped", "event", msg.Event().String())
		return
	}
	if err := s.send(msg); err != nil {
		s.logger.Warn("session: failed to send message", "event", msg.Event().String(), "error", err)
	}
}

func (s *Session) send(msg protocol.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.emitTimeout)
	defer cancel()

	return s.conn.Emit(ctx, msg)
}

// handle runs on the connection's read goroutine.
func (s *Session) handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.EditOperation:
		s.touch(m.UserID)
		s.operations.Publish(m.EditOperation)
		return
	case protocol.DocumentUpdated:
		s.issueUpdates.Publish(m)
		return
	case protocol.EditConflict:
		s.conflicts.Publish(m.Conflict)
		return
	}

	now := s.now()

	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}

	changed := true
	delta := 0
	switch m := msg.(type) {
	case protocol.ActiveUsers:
		delta = s.presence.replace(m.Users, now)
	case protocol.UserJoined:
		changed = s.presence.join(m.Participant, now)
		if changed {
			delta = 1
		}
	case protocol.UserLeft:
		if s.presence.leave(m.UserID) {
			delta = -1
		}
	case protocol.CursorUpdate:
		changed = s.presence.moveCursor(models.Cursor{
			UserID:   m.UserID,
			UserName: m.UserName,
			Field:    m.Field,
			Position: m.Position,
			Color:    m.Color,
		}, now)
	case protocol.TypingStart:
		changed = s.presence.startTyping(models.TypingIndicator{
			UserID:   m.UserID,
			UserName: m.UserName,
			Field:    m.Field,
		}, now)
	case protocol.TypingStop:
		changed = s.presence.stopTyping(models.TypingKey{UserID: m.UserID, Field: m.Field}, now)
	default:
		changed = false
		s.logger.Debug("session: unhandled message", "event", msg.Event().String())
	}
	if changed {
		s.signalLocked()
	}
	s.mu.Unlock()

	s.metrics.AddParticipants(delta)
}

func (s *Session) touch(userID string) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateTornDown && userID != s.opts.UserID {
		s.presence.touch(userID, now)
	}
}

func (s *Session) notifyChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateTornDown {
		s.signalLocked()
	}
}

// signalLocked must be called with mu held and the session not torn down.
func (s *Session) signalLocked() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) sweepLoop(interval time.Duration) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep evicts participants not heard from within PresenceTTL.
func (s *Session) sweep() {
	cutoff := s.now().Add(-s.opts.PresenceTTL)

	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	evicted, removed := s.presence.expire(cutoff)
	if len(evicted) > 0 {
		s.signalLocked()
	}
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.metrics.AddParticipants(-removed)
		s.logger.Info("session: evicted silent participants",
			"document", s.opts.DocumentID, "users", evicted)
	}
}
