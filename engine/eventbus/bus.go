package eventbus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler consumes one event. A returned error is reported to the bus error
// sink and never reaches the publisher.
type Handler func(Event) error

// ErrorSink receives subscriber failures for operator attention.
type ErrorSink func(Event, error)

type subscription struct {
	kind    Kind
	handler Handler
}

// Bus is an in-process publish/subscribe connector. Delivery is synchronous
// in the publisher's goroutine, so events published under a conversation's
// exclusion scope reach each subscriber in publication order for that
// conversation. Subscriber failures are isolated: they are logged and do
// not prevent delivery to other subscribers or roll back the publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Kind][]*subscription
	errSink ErrorSink
}

type Option func(*Bus)

// WithErrorSink overrides the default zerolog error sink.
func WithErrorSink(sink ErrorSink) Option {
	return func(b *Bus) {
		if sink != nil {
			b.errSink = sink
		}
	}
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[Kind][]*subscription),
		errSink: func(e Event, err error) {
			log.Error().
				Err(err).
				Str("event_id", e.ID).
				Str("conversation_id", e.ConversationID).
				Str("kind", string(e.Kind)).
				Msg("event subscriber failed")
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for kind and returns an unsubscribe func.
// Safe to call while events are in flight.
func (b *Bus) Subscribe(kind Kind, handler Handler) (unsubscribe func()) {
	sub := &subscription{kind: kind, handler: handler}

	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		current := b.subs[kind]
		for i, s := range current {
			if s == sub {
				next := make([]*subscription, 0, len(current)-1)
				next = append(next, current[:i]...)
				next = append(next, current[i+1:]...)
				b.subs[kind] = next
				return
			}
		}
	}
}

// Publish delivers the event to every subscriber registered for its kind at
// publication time. Fire-and-forget for the publisher: errors and panics in
// handlers go to the error sink.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs[e.Kind]
	snapshot := make([]*subscription, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.errSink(e, fmt.Errorf("subscriber panic: %v", r))
		}
	}()
	if err := sub.handler(e); err != nil {
		b.errSink(e, err)
	}
}
