package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus publishes trace events to registered subscribers in a fan-out
	// pattern. The bus is thread-safe and supports concurrent Publish,
	// Register, and Close operations across sessions.
	//
	// Events are delivered synchronously in the publisher's goroutine to every
	// subscriber; individual subscriber errors do not stop delivery to the
	// rest. Publish returns the joined subscriber errors so callers can log
	// them — the orchestration loop never aborts a session on emitter failure.
	Bus interface {
		// Publish delivers the event to every currently registered subscriber
		// in registration order.
		Publish(ctx context.Context, event Event) error

		// Register adds a subscriber to the bus and returns a Subscription
		// that can be closed to unregister. Register returns an error if sub
		// is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published trace events. Implementations must be
	// safe for concurrent use: many sessions publish to the same bus.
	Subscriber interface {
		// HandleEvent processes a single event. The context originates from
		// the Publish call and may carry deadlines or cancellation.
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription represents an active registration on a Bus. Close removes
	// the subscriber; it is idempotent and always returns nil.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
		order       []*subscription
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent implements Subscriber.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NewBus constructs a new in-memory trace bus. The returned bus is thread-safe
// and ready for immediate use.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

// Publish delivers the event to every registered subscriber in registration
// order. The subscriber snapshot is captured before iteration, so concurrent
// Register/Close calls do not affect an in-flight publish.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.order))
	for _, handle := range b.order {
		if sub, ok := b.subscribers[handle]; ok {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Register implements Bus.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	handle := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[handle] = sub
	b.order = append(b.order, handle)
	b.mu.Unlock()
	return handle, nil
}

// Close removes the subscriber from the bus. Idempotent.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		for i, handle := range s.bus.order {
			if handle == s {
				s.bus.order = append(s.bus.order[:i], s.bus.order[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
	})
	return nil
}
