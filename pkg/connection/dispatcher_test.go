package connection

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/metrics"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, codec.Codec) {
	t.Helper()
	c := codec.NewJSON()
	log := logger.New(slog.NewTextHandler(os.Stdout, nil))
	return NewDispatcher(c, log, nil), c
}

func encode(t *testing.T, c codec.Codec, msg protocol.Message) []byte {
	t.Helper()
	data, err := protocol.Encode(c, msg)
	require.NoError(t, err)
	return data
}

func TestDispatcherFilters(t *testing.T) {
	d, c := newTestDispatcher(t)

	var all, cursorsOnly, notMine, docOne []protocol.Message
	d.Subscribe(func(m protocol.Message) { all = append(all, m) })
	d.Subscribe(func(m protocol.Message) { cursorsOnly = append(cursorsOnly, m) }, Events(protocol.EventCursorUpdate))
	d.Subscribe(func(m protocol.Message) { notMine = append(notMine, m) }, ExcludeSender("me"))
	d.Subscribe(func(m protocol.Message) { docOne = append(docOne, m) }, ForDocument("i1"), ExcludeSender("me"))

	d.Dispatch(encode(t, c, protocol.CursorUpdate{IssueID: "i1", UserID: "me", Field: "title", Position: 1}))
	d.Dispatch(encode(t, c, protocol.CursorUpdate{IssueID: "i1", UserID: "bo", Field: "title", Position: 2}))
	d.Dispatch(encode(t, c, protocol.TypingStart{IssueID: "i2", UserID: "bo", Field: "title"}))
	d.Dispatch(encode(t, c, protocol.IssueDeleted{ID: "x"}))

	assert.Len(t, all, 4)
	assert.Len(t, cursorsOnly, 2)
	// IssueDeleted carries no sender and passes the exclusion.
	assert.Len(t, notMine, 3)
	require.Len(t, docOne, 1)
	assert.Equal(t, "bo", docOne[0].(protocol.CursorUpdate).UserID)
}

func TestDispatcherDropsMalformed(t *testing.T) {
	c := codec.NewJSON()
	m, err := metrics.NewMetrics()
	require.NoError(t, err)
	d := NewDispatcher(c, logger.Discard(), m)

	var got []protocol.Message
	d.Subscribe(func(msg protocol.Message) { got = append(got, msg) })

	d.Dispatch([]byte(`not json`))
	d.Dispatch([]byte(`{"event":"issue:deleted","data":{}}`))
	d.Dispatch([]byte(`{"event":"no-such-event","data":{}}`))
	d.Dispatch([]byte(`{"event":"issue:deleted","data":{"id":"ok"}}`))

	require.Len(t, got, 1)
	assert.Equal(t, protocol.IssueDeleted{ID: "ok"}, got[0])
}

func TestSubscriptionUnsubscribe(t *testing.T) {
	d, c := newTestDispatcher(t)

	calls := 0
	sub := d.Subscribe(func(protocol.Message) { calls++ })
	d.Dispatch(encode(t, c, protocol.IssueDeleted{ID: "a"}))

	sub.Unsubscribe()
	sub.Unsubscribe()
	d.Dispatch(encode(t, c, protocol.IssueDeleted{ID: "b"}))

	assert.Equal(t, 1, calls)
}

func TestDispatcherLifecycle(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var seen []Lifecycle
	sub := d.OnLifecycle(func(l Lifecycle) { seen = append(seen, l) })

	d.Notify(LifecycleOpened)
	d.Notify(LifecycleClosed)
	sub.Unsubscribe()
	d.Notify(LifecycleFailed)

	assert.Equal(t, []Lifecycle{LifecycleOpened, LifecycleClosed}, seen)
	assert.Equal(t, "opened", LifecycleOpened.String())
}
