package notify

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
)

func newTestBus(t *testing.T) *Bus[string] {
	t.Helper()
	return NewBus[string]("test", logger.New(slog.NewTextHandler(os.Stdout, nil)), nil)
}

func TestBusFanOut(t *testing.T) {
	b := newTestBus(t)

	a, cancelA := b.Subscribe()
	c, cancelC := b.Subscribe()
	defer cancelC()
	assert.Equal(t, 2, b.Len())

	b.Publish("hello")
	assert.Equal(t, "hello", <-a)
	assert.Equal(t, "hello", <-c)

	cancelA()
	cancelA()
	_, ok := <-a
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 1, b.Len())

	b.Publish("again")
	assert.Equal(t, "again", <-c)
}

func TestBusDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := newTestBus(t)
	b.bufferSize = 2

	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Publish("x")
	}
	assert.Len(t, ch, 2)
}

func TestBusClose(t *testing.T) {
	b := newTestBus(t)
	ch, cancel := b.Subscribe()

	b.Close()
	b.Close()
	_, ok := <-ch
	assert.False(t, ok)

	// Cancel after Close and Publish after Close are no-ops.
	assert.NotPanics(t, cancel)
	assert.NotPanics(t, func() { b.Publish("late") })

	late, _ := b.Subscribe()
	_, ok = <-late
	require.False(t, ok)
}
