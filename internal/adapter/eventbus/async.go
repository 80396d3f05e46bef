package eventbus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

// AsyncEventBus delivers events on a single dispatcher goroutine.
//
// Publish appends to an unbounded FIFO and returns immediately, so publishers
// never wait on handlers. Events are delivered in publish order, which keeps the
// per-session ordering of lifecycle events intact.
//
// Close drains the events already queued, then stops the dispatcher.
type AsyncEventBus struct {
	logger   *slog.Logger
	registry *subscriptions

	mu      sync.Mutex
	pending []domain.Event
	wake    chan struct{}
	closed  bool
	done    chan struct{}
}

// NewAsyncEventBus creates a bus and starts its dispatcher goroutine.
func NewAsyncEventBus() *AsyncEventBus {
	bus := &AsyncEventBus{
		registry: newSubscriptions(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go bus.dispatch()
	return bus
}

// SetLogger sets the logger for this event bus.
func (bus *AsyncEventBus) SetLogger(logger *slog.Logger) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.logger = logger
}

// Publish queues the event for delivery. Events published after Close are dropped.
func (bus *AsyncEventBus) Publish(event domain.Event) {
	if event == nil {
		return
	}

	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		return
	}
	bus.pending = append(bus.pending, event)
	bus.mu.Unlock()

	select {
	case bus.wake <- struct{}{}:
	default:
	}
}

func (bus *AsyncEventBus) dispatch() {
	defer close(bus.done)

	for {
		bus.mu.Lock()
		batch := bus.pending
		bus.pending = nil
		closed := bus.closed
		logger := bus.logger
		bus.mu.Unlock()

		for _, event := range batch {
			for _, sub := range bus.registry.matching(event) {
				callHandler(logger, sub.handler, event)
			}
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-bus.wake
	}
}

// Subscribe registers a handler for events of the specified type.
func (bus *AsyncEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID {
	bus.mustBeOpen(handler)
	return bus.registry.add(eventType, nil, handler)
}

// SubscribeFiltered registers a handler that only receives events passing filter.
func (bus *AsyncEventBus) SubscribeFiltered(eventType domain.EventType, filter ports.EventFilter, handler domain.EventHandler) domain.SubscriptionID {
	bus.mustBeOpen(handler)
	return bus.registry.add(eventType, filter, handler)
}

// SubscribeAll registers a handler that receives all events regardless of type.
func (bus *AsyncEventBus) SubscribeAll(handler domain.EventHandler) domain.SubscriptionID {
	bus.mustBeOpen(handler)
	return bus.registry.addAll(handler)
}

// Unsubscribe removes a previously registered event handler.
// Events already queued for that handler are not delivered to it.
func (bus *AsyncEventBus) Unsubscribe(id domain.SubscriptionID) {
	bus.registry.remove(id)
}

// HasSubscribers returns true if there are any active subscriptions for the given event type.
func (bus *AsyncEventBus) HasSubscribers(eventType domain.EventType) bool {
	return bus.registry.has(eventType)
}

// SubscriberCount returns the number of active subscriptions.
func (bus *AsyncEventBus) SubscriberCount() int {
	return bus.registry.count()
}

// Close stops accepting events, waits until queued events are delivered and
// clears all subscriptions.
//
// Returns an error if already closed. Close must not be called from a handler.
func (bus *AsyncEventBus) Close() error {
	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		return fmt.Errorf("event bus already closed")
	}
	bus.closed = true
	bus.mu.Unlock()

	select {
	case bus.wake <- struct{}{}:
	default:
	}
	<-bus.done

	bus.registry.clear()
	return nil
}

func (bus *AsyncEventBus) mustBeOpen(handler domain.EventHandler) {
	if handler == nil {
		panic("event handler cannot be nil")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		panic("cannot subscribe to closed event bus")
	}
}

// Verify that AsyncEventBus implements the FilteringEventBus interface
var _ ports.FilteringEventBus = (*AsyncEventBus)(nil)
