package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/mock"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/store/memory"
)

type harness struct {
	t        *testing.T
	conn     *mock.Conn
	store    *memory.Store
	engine   *Engine
	comments <-chan models.Comment
	barriers int
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	st, err := memory.New(logger.Discard())
	require.NoError(t, err)

	conn := mock.Create()
	e := New(conn, st, opts...)
	comments, unsubscribe := e.Comments()

	t.Cleanup(func() {
		unsubscribe()
		_ = e.Close(context.Background())
		st.Close()
	})

	return &harness{t: t, conn: conn, store: st, engine: e, comments: comments}
}

// flush waits until every message pushed so far has been handled.
func (h *harness) flush() {
	h.t.Helper()

	h.barriers++
	id := fmt.Sprintf("barrier-%d", h.barriers)
	h.conn.Push(protocol.CommentAdded{Comment: models.Comment{ID: id, IssueID: "barrier"}})

	timeout := time.After(2 * time.Second)
	for {
		select {
		case c := <-h.comments:
			if c.ID == id {
				return
			}
		case <-timeout:
			h.t.Fatal("engine did not drain its queue")
		}
	}
}

func (h *harness) waitPhase(p Phase) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.engine.State().Phase == p
	}, 2*time.Second, 5*time.Millisecond, "phase %v", p)
}

func (h *harness) waitSent(n int) []protocol.Message {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return len(h.conn.Sent()) >= n
	}, 2*time.Second, 5*time.Millisecond, "expected %d messages", n)
	return h.conn.Sent()
}

// joined brings the engine to room-joined in project.
func (h *harness) joined(userID, project string) {
	h.t.Helper()

	h.engine.Connect(userID)
	h.engine.JoinProject(project)
	h.waitSent(1)
	h.conn.Push(protocol.Authenticated{UserID: userID})
	h.waitPhase(PhaseRoomJoined)
	h.waitSent(2)
	h.conn.Reset()
}

func issue(id, project string) models.Issue {
	return models.Issue{ID: id, Key: "K-" + id, ProjectID: project, Title: "title " + id, Status: "todo"}
}

func TestConnectAuthenticatesThenJoins(t *testing.T) {
	h := newHarness(t)

	h.engine.Connect("u1")
	h.engine.JoinProject("P1")

	sent := h.waitSent(1)
	assert.Equal(t, protocol.Authenticate{UserID: "u1"}, sent[0])
	assert.False(t, h.engine.Connected())

	h.conn.Push(protocol.Authenticated{UserID: "u1"})
	h.waitPhase(PhaseRoomJoined)

	sent = h.waitSent(2)
	assert.Equal(t, []protocol.Message{
		protocol.Authenticate{UserID: "u1"},
		protocol.JoinProject{ProjectID: "P1"},
	}, sent)
	assert.True(t, h.engine.Connected())
	assert.Equal(t, "P1", h.engine.Room())
}

func TestRefusedFirstDialWaitsForRetry(t *testing.T) {
	h := newHarness(t)
	h.conn.Refuse(errors.New("connection refused"))

	h.engine.Connect("u1")
	h.engine.JoinProject("P1")
	h.waitPhase(PhaseConnecting)
	h.flush()

	// The connection is still retrying, so the engine neither gives up nor
	// sends anything yet.
	assert.Equal(t, PhaseConnecting, h.engine.State().Phase)
	assert.Equal(t, "P1", h.engine.Room())
	assert.Empty(t, h.conn.Sent())

	h.conn.Reopen()
	assert.Equal(t, protocol.Authenticate{UserID: "u1"}, h.waitSent(1)[0])

	h.conn.Push(protocol.Authenticated{UserID: "u1"})
	h.waitPhase(PhaseRoomJoined)
	assert.Equal(t, protocol.JoinProject{ProjectID: "P1"}, h.waitSent(2)[1])
}

func TestConnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "P1")

	h.engine.Connect("u1")
	h.engine.Connect("u2")
	h.flush()

	assert.Empty(t, h.conn.Sent())
	assert.Equal(t, "u1", h.engine.State().UserID)
}

func TestJoinWhileDisconnectedEmitsNothing(t *testing.T) {
	h := newHarness(t)

	h.engine.JoinProject("P1")
	h.flush()

	assert.Empty(t, h.conn.Sent())
	assert.Equal(t, "P1", h.engine.Room())
	assert.Equal(t, PhaseDisconnected, h.engine.State().Phase)
}

func TestRoomExclusivity(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "A")

	h.conn.Push(protocol.IssueCreated{Issue: issue("i1", "A")})
	h.flush()
	require.Len(t, h.store.Issues("A"), 1)

	h.engine.JoinProject("A")
	h.engine.JoinProject("B")
	sent := h.waitSent(2)

	assert.Equal(t, []protocol.Message{
		protocol.LeaveProject{ProjectID: "A"},
		protocol.JoinProject{ProjectID: "B"},
	}, sent)
	assert.Equal(t, "B", h.engine.Room())
	assert.Empty(t, h.store.Issues("A"))
}

func TestPurgeOnLeaveDisabled(t *testing.T) {
	h := newHarness(t, WithPurgeOnLeave(false))
	h.joined("u1", "A")

	h.conn.Push(protocol.IssueCreated{Issue: issue("i1", "A")})
	h.flush()

	h.engine.LeaveProject("A")
	h.waitSent(1)
	h.flush()

	assert.Equal(t, []protocol.Message{protocol.LeaveProject{ProjectID: "A"}}, h.conn.Sent())
	assert.Len(t, h.store.Issues("A"), 1)
	assert.Equal(t, PhaseAuthenticated, h.engine.State().Phase)
}

func TestLeaveOtherProjectIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "A")

	h.engine.LeaveProject("B")
	h.flush()

	assert.Empty(t, h.conn.Sent())
	assert.Equal(t, "A", h.engine.Room())
}

func TestIssueCreatedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "P1")

	created := protocol.IssueCreated{Issue: issue("i1", "P1")}
	h.conn.Push(created)
	h.flush()
	first, ok := h.store.Issue("i1")
	require.True(t, ok)

	h.conn.Push(created)
	h.flush()

	second, ok := h.store.Issue("i1")
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Len(t, h.store.Issues("P1"), 1)
}

func TestIssueCreatedOutsideRoom(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "P1")

	h.conn.Push(protocol.IssueCreated{Issue: issue("i1", "P2")})
	h.flush()

	_, ok := h.store.Issue("i1")
	assert.False(t, ok)
}

func TestIssueUpdates(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "P1")

	require.NoError(t, h.store.UpsertIssue(issue("other", "P2")))
	h.conn.Push(protocol.IssueCreated{Issue: issue("i1", "P1")})

	t.Run("fields are merged", func(t *testing.T) {
		h.conn.Push(protocol.IssueUpdated{ID: "i1", ProjectID: "P1", Changes: map[string]any{
			"title":    "renamed",
			"priority": "high",
		}})
		h.flush()

		got, ok := h.store.Issue("i1")
		require.True(t, ok)
		assert.Equal(t, "renamed", got.Title)
		assert.Equal(t, "high", got.Priority)
		assert.Equal(t, "todo", got.Status)
		assert.Equal(t, "K-i1", got.Key)
	})

	t.Run("status change", func(t *testing.T) {
		h.conn.Push(protocol.IssueStatusChanged{ID: "i1", ProjectID: "P1", Status: "done"})
		h.conn.Push(protocol.IssueStatusChanged{ID: "i1", ProjectID: "P1", Status: "done"})
		h.flush()

		got, _ := h.store.Issue("i1")
		assert.Equal(t, "done", got.Status)
		assert.Equal(t, "renamed", got.Title)
	})

	t.Run("unknown issue is ignored", func(t *testing.T) {
		h.conn.Push(protocol.IssueUpdated{ID: "missing", Changes: map[string]any{"title": "x"}})
		h.flush()

		_, ok := h.store.Issue("missing")
		assert.False(t, ok)
	})

	t.Run("issue of another project is untouched", func(t *testing.T) {
		h.conn.Push(protocol.IssueUpdated{ID: "other", Changes: map[string]any{"title": "x"}})
		h.flush()

		got, _ := h.store.Issue("other")
		assert.Equal(t, "title other", got.Title)
	})
}

func TestIssueDeletedPropagates(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "P1")

	require.NoError(t, h.store.UpsertIssue(issue("foreign", "P2")))
	h.conn.Push(protocol.IssueCreated{Issue: issue("i1", "P1")})
	h.flush()

	h.conn.Push(protocol.IssueDeleted{ID: "i1"})
	h.conn.Push(protocol.IssueDeleted{ID: "i1"})
	h.conn.Push(protocol.IssueDeleted{ID: "foreign"})
	h.flush()

	_, ok := h.store.Issue("i1")
	assert.False(t, ok)
	_, ok = h.store.Issue("foreign")
	assert.False(t, ok, "deletes are applied regardless of the room")
}

func TestSprints(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "P1")

	sprint := models.Sprint{ID: "s1", ProjectID: "P1", Name: "Sprint 1", Status: "planned"}
	h.conn.Push(protocol.SprintCreated{Sprint: sprint})
	h.conn.Push(protocol.SprintCreated{Sprint: models.Sprint{ID: "s2", ProjectID: "P2", Name: "elsewhere"}})
	h.flush()

	got, ok := h.store.Sprint("s1")
	require.True(t, ok)
	assert.Equal(t, "Sprint 1", got.Name)
	_, ok = h.store.Sprint("s2")
	assert.False(t, ok)

	sprint.Status = "active"
	h.conn.Push(protocol.SprintUpdated{Sprint: sprint})
	h.flush()
	got, _ = h.store.Sprint("s1")
	assert.Equal(t, "active", got.Status)

	h.conn.Push(protocol.SprintDeleted{ID: "s1"})
	h.conn.Push(protocol.SprintDeleted{ID: "s1"})
	h.flush()
	_, ok = h.store.Sprint("s1")
	assert.False(t, ok)
}

func TestCommentsAreNotStored(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "P1")

	h.conn.Push(protocol.CommentAdded{Comment: models.Comment{ID: "c1", IssueID: "i1", Content: "hello"}})

	select {
	case c := <-h.comments:
		assert.Equal(t, "c1", c.ID)
		assert.Equal(t, "hello", c.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("comment was not re-dispatched")
	}
	assert.Empty(t, h.store.Issues("P1"))
}

func TestReconnectRejoinsRoom(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "R")

	h.conn.Drop()
	h.waitPhase(PhaseConnecting)
	assert.Equal(t, "R", h.engine.Room())
	assert.False(t, h.engine.Connected())

	h.conn.Reopen()
	sent := h.waitSent(1)
	assert.Equal(t, protocol.Authenticate{UserID: "u1"}, sent[0])

	h.conn.Push(protocol.Authenticated{UserID: "u1"})
	h.waitPhase(PhaseRoomJoined)

	assert.Equal(t, []protocol.Message{
		protocol.Authenticate{UserID: "u1"},
		protocol.JoinProject{ProjectID: "R"},
	}, h.waitSent(2))
}

func TestTransportFailure(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "R")

	h.conn.Drop()
	h.conn.Notify(connection.LifecycleFailed)
	h.waitPhase(PhaseDisconnected)

	// A new Connect goes through the whole handshake again.
	h.engine.Connect("u1")
	h.waitSent(1)
	h.conn.Push(protocol.Authenticated{UserID: "u1"})
	h.waitPhase(PhaseRoomJoined)
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "P1")

	h.conn.Push(protocol.IssueCreated{Issue: issue("i1", "P1")})
	h.flush()

	h.engine.Disconnect()
	h.waitPhase(PhaseDisconnected)
	h.flush()

	assert.Equal(t, []protocol.Message{protocol.LeaveProject{ProjectID: "P1"}}, h.conn.Sent())
	assert.False(t, h.conn.Connected())
	assert.Equal(t, State{}, h.engine.State())
	assert.Empty(t, h.store.Issues("P1"))

	// Safe to repeat.
	h.engine.Disconnect()
	h.flush()
	assert.Len(t, h.conn.Sent(), 1)
}

func TestTransitionsAreObservable(t *testing.T) {
	h := newHarness(t)
	states, unsubscribe := h.engine.Transitions()
	defer unsubscribe()

	h.engine.Connect("u1")
	h.waitSent(1)
	h.conn.Push(protocol.Authenticated{UserID: "u1"})

	var phases []Phase
	timeout := time.After(2 * time.Second)
	for len(phases) == 0 || phases[len(phases)-1] != PhaseAuthenticated {
		select {
		case s := <-states:
			phases = append(phases, s.Phase)
		case <-timeout:
			t.Fatalf("missing transitions, got %v", phases)
		}
	}
	assert.Equal(t, PhaseConnecting, phases[0])
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	h.joined("u1", "P1")

	require.NoError(t, h.engine.Close(context.Background()))
	assert.ErrorIs(t, h.engine.Close(context.Background()), ErrClosed)

	assert.Equal(t, []protocol.Message{protocol.LeaveProject{ProjectID: "P1"}}, h.conn.Sent())
	assert.True(t, h.conn.Closed())

	// Calls after Close are dropped.
	h.engine.Connect("u1")
	assert.Equal(t, State{}, h.engine.State())
}
