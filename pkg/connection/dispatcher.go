package connection

import (
	"errors"
	"sync"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/metrics"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
)

// Handler receives decoded inbound messages.
// It is called synchronously from the transport read goroutine and must not block.
type Handler func(protocol.Message)

type filter struct {
	events        map[protocol.Event]struct{}
	excludeSender string
	document      string
}

func (f *filter) match(msg protocol.Message) bool {
	if len(f.events) > 0 {
		if _, ok := f.events[msg.Event()]; !ok {
			return false
		}
	}
	if f.excludeSender != "" {
		if s, ok := msg.(protocol.Sender); ok && s.SenderID() == f.excludeSender {
			return false
		}
	}
	if f.document != "" {
		s, ok := msg.(protocol.Scoped)
		if !ok || s.DocumentID() != f.document {
			return false
		}
	}
	return true
}

// SubscribeOption narrows what a subscription receives.
type SubscribeOption func(*filter)

// Events restricts delivery to the given event names.
func Events(events ...protocol.Event) SubscribeOption {
	return func(f *filter) {
		if f.events == nil {
			f.events = make(map[protocol.Event]struct{}, len(events))
		}
		for _, e := range events {
			f.events[e] = struct{}{}
		}
	}
}

// ExcludeSender drops messages whose sender is userID.
// Messages that carry no sender are still delivered.
func ExcludeSender(userID string) SubscribeOption {
	return func(f *filter) {
		f.excludeSender = userID
	}
}

// ForDocument delivers only messages scoped to the given document.
func ForDocument(id string) SubscribeOption {
	return func(f *filter) {
		f.document = id
	}
}

// Subscription is returned by Subscribe and OnLifecycle.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe detaches the handler. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type subscriber struct {
	handler Handler
	filter  filter
}

// Dispatcher decodes raw frames and fans them out to subscribers.
type Dispatcher struct {
	unmarshaler codec.Unmarshaler
	logger      logger.Logger
	metrics     *metrics.Metrics

	mu        sync.RWMutex
	nextID    uint64
	handlers  map[uint64]*subscriber
	lifecycle map[uint64]LifecycleHandler
}

func NewDispatcher(u codec.Unmarshaler, log logger.Logger, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{
		unmarshaler: u,
		logger:      log,
		metrics:     m,
		handlers:    make(map[uint64]*subscriber),
		lifecycle:   make(map[uint64]LifecycleHandler),
	}
}

// Subscribe registers h for inbound messages matching every option.
func (d *Dispatcher) Subscribe(h Handler, opts ...SubscribeOption) *Subscription {
	s := &subscriber{handler: h}
	for _, opt := range opts {
		opt(&s.filter)
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.handlers[id] = s
	d.mu.Unlock()

	return &Subscription{cancel: func() {
		d.mu.Lock()
		delete(d.handlers, id)
		d.mu.Unlock()
	}}
}

// OnLifecycle registers l for transport lifecycle changes.
func (d *Dispatcher) OnLifecycle(l LifecycleHandler) *Subscription {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.lifecycle[id] = l
	d.mu.Unlock()

	return &Subscription{cancel: func() {
		d.mu.Lock()
		delete(d.lifecycle, id)
		d.mu.Unlock()
	}}
}

// Dispatch decodes one raw frame and delivers it.
// Frames that fail to decode are logged and never reach a handler.
func (d *Dispatcher) Dispatch(raw []byte) {
	msg, err := protocol.Decode(d.unmarshaler, raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownEvent) {
			d.logger.Debug("Dropping frame with unknown event", "error", err)
			return
		}
		d.metrics.AddMalformedFrame()
		d.logger.Warn("Dropping malformed frame", "error", err)
		return
	}

	d.metrics.AddInboundEvent(msg.Event().String())
	d.Deliver(msg)
}

// Deliver hands an already decoded message to every matching subscriber.
func (d *Dispatcher) Deliver(msg protocol.Message) {
	d.mu.RLock()
	matched := make([]Handler, 0, len(d.handlers))
	for _, s := range d.handlers {
		if s.filter.match(msg) {
			matched = append(matched, s.handler)
		}
	}
	d.mu.RUnlock()

	for _, h := range matched {
		h(msg)
	}
}

// Notify reports a lifecycle change to every lifecycle handler.
func (d *Dispatcher) Notify(l Lifecycle) {
	d.mu.RLock()
	handlers := make([]LifecycleHandler, 0, len(d.lifecycle))
	for _, h := range d.lifecycle {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	d.logger.Debug("Notifying lifecycle change", "lifecycle", l.String(), "handlers", len(handlers))
	for _, h := range handlers {
		h(l)
	}
}
