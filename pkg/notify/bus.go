// Package notify fans local notifications out to buffered subscriber channels.
package notify

import (
	"sync"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/metrics"
)

// DefaultBufferSize is the capacity of each subscriber channel.
const DefaultBufferSize = 100

// Bus delivers published values to every subscriber without blocking the
// publisher. A subscriber whose channel is full misses the value.
type Bus[T any] struct {
	stream     string
	bufferSize int
	logger     logger.Logger
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]chan T
	closed bool
}

// NewBus creates a bus. The stream name labels logs and drop metrics.
func NewBus[T any](stream string, log logger.Logger, m *metrics.Metrics) *Bus[T] {
	if log == nil {
		log = logger.Discard()
	}
	return &Bus[T]{
		stream:     stream,
		bufferSize: DefaultBufferSize,
		logger:     log,
		metrics:    m,
		subs:       make(map[uint64]chan T),
	}
}

// Subscribe returns a channel of published values and a function that
// removes the subscription and closes the channel.
// Subscribing to a closed bus returns an already closed channel.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.logger.Debug("Created new subscription", "stream", b.stream, "id", id)

	return ch, func() { b.remove(id) }
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
		b.logger.Debug("Subscription removed", "stream", b.stream, "id", id)
	}
}

// Publish sends v to every subscriber.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.metrics.AddDroppedDelivery(b.stream)
			b.logger.Warn("Failed to route notification, channel might be full",
				"stream", b.stream, "id", id)
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Close closes every subscriber channel. Publishing afterwards is a no-op.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.logger.Debug("Bus closed", "stream", b.stream)
}
