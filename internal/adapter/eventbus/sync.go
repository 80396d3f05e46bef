// Package eventbus provides implementations of the EventBus interface.
// This file contains the synchronous event bus used for deterministic tests
// and for embedding applications that want delivery on the publisher's goroutine.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

// SyncEventBus is a synchronous implementation of the EventBus interface.
// Events are delivered to handlers synchronously in the order they were subscribed.
//
// Thread-safety: This implementation is thread-safe. Multiple goroutines can
// publish events and subscribe/unsubscribe handlers concurrently.
//
// Handlers run on the publishing goroutine. A handler must not call back into a
// session operation that waits on playback (StartNext, Join), since the session
// may be publishing from inside that operation.
type SyncEventBus struct {
	logger *slog.Logger

	// registry holds the subscriptions shared with the async bus
	registry *subscriptions

	// mu protects closed
	mu     sync.RWMutex
	closed bool
}

// NewSyncEventBus creates a new synchronous event bus.
func NewSyncEventBus() *SyncEventBus {
	return &SyncEventBus{
		registry: newSubscriptions(),
	}
}

// SetLogger sets the logger for this event bus.
// This should be called after construction before using the event bus.
func (bus *SyncEventBus) SetLogger(logger *slog.Logger) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.logger = logger
}

// Publish publishes an event to all subscribers of that event type.
// Handlers are called synchronously in the order they subscribed.
//
// If the event bus is closed, this method does nothing.
//
// Panics in handlers are recovered and logged, but do not stop other handlers
// from being called.
func (bus *SyncEventBus) Publish(event domain.Event) {
	if event == nil {
		return
	}

	bus.mu.RLock()
	if bus.closed {
		bus.mu.RUnlock()
		return
	}
	logger := bus.logger
	bus.mu.RUnlock()

	for _, sub := range bus.registry.matching(event) {
		callHandler(logger, sub.handler, event)
	}
}

// Subscribe registers a handler for events of the specified type.
// Returns a unique subscription ID that can be used to unsubscribe.
//
// The same handler can be registered multiple times with different IDs.
func (bus *SyncEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID {
	bus.mustBeOpen(handler)
	return bus.registry.add(eventType, nil, handler)
}

// SubscribeFiltered registers a handler that only receives events passing filter.
func (bus *SyncEventBus) SubscribeFiltered(eventType domain.EventType, filter ports.EventFilter, handler domain.EventHandler) domain.SubscriptionID {
	bus.mustBeOpen(handler)
	return bus.registry.add(eventType, filter, handler)
}

// Unsubscribe removes a previously registered event handler.
// If the subscription ID is invalid or already unsubscribed, this is a no-op.
func (bus *SyncEventBus) Unsubscribe(id domain.SubscriptionID) {
	bus.registry.remove(id)
}

// SubscribeAll registers a handler that receives all events regardless of type.
// Returns a unique subscription ID that can be used to unsubscribe.
//
// This is useful for logging, debugging, or analytics.
func (bus *SyncEventBus) SubscribeAll(handler domain.EventHandler) domain.SubscriptionID {
	bus.mustBeOpen(handler)
	return bus.registry.addAll(handler)
}

// HasSubscribers returns true if there are any active subscriptions for the given event type.
// This can be used to avoid expensive event construction if no one is listening.
func (bus *SyncEventBus) HasSubscribers(eventType domain.EventType) bool {
	return bus.registry.has(eventType)
}

// Close shuts down the event bus and clears all subscriptions.
// After calling Close, no more events should be published or subscribed.
//
// Returns an error if already closed.
func (bus *SyncEventBus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		return fmt.Errorf("event bus already closed")
	}

	bus.closed = true
	bus.registry.clear()

	return nil
}

// SubscriberCount returns the number of active subscriptions for debugging.
// This counts both type-specific and wildcard subscriptions.
func (bus *SyncEventBus) SubscriberCount() int {
	return bus.registry.count()
}

func (bus *SyncEventBus) mustBeOpen(handler domain.EventHandler) {
	if handler == nil {
		panic("event handler cannot be nil")
	}

	bus.mu.RLock()
	defer bus.mu.RUnlock()

	if bus.closed {
		panic("cannot subscribe to closed event bus")
	}
}

// GroupFilter returns a filter that only passes events of one group.
func GroupFilter(groupID string) ports.EventFilter {
	return func(event domain.Event) bool {
		return event.GroupID() == groupID
	}
}

// a subscription represents a single event subscription.
type subscription struct {
	id      domain.SubscriptionID
	filter  ports.EventFilter
	handler domain.EventHandler
}

// subscriptions is the subscriber table shared by both bus implementations.
type subscriptions struct {
	// byType maps event types to their subscriptions
	byType map[domain.EventType][]subscription

	// all contains handlers that receive all events
	all []subscription

	// mu protects byType and all
	mu sync.RWMutex

	// idCounter generates unique subscription IDs
	idCounter uint64
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		byType: make(map[domain.EventType][]subscription),
		all:    make([]subscription, 0),
	}
}

func (s *subscriptions) add(eventType domain.EventType, filter ports.EventFilter, handler domain.EventHandler) domain.SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := domain.SubscriptionID(fmt.Sprintf("sub-%d", atomic.AddUint64(&s.idCounter, 1)))
	s.byType[eventType] = append(s.byType[eventType], subscription{id: id, filter: filter, handler: handler})
	return id
}

func (s *subscriptions) addAll(handler domain.EventHandler) domain.SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := domain.SubscriptionID(fmt.Sprintf("sub-all-%d", atomic.AddUint64(&s.idCounter, 1)))
	s.all = append(s.all, subscription{id: id, handler: handler})
	return id
}

func (s *subscriptions) remove(id domain.SubscriptionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for eventType, subs := range s.byType {
		for i, sub := range subs {
			if sub.id == id {
				// Keep subscription order: handlers are called in the order they subscribed
				s.byType[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}

	for i, sub := range s.all {
		if sub.id == id {
			s.all = append(s.all[:i:i], s.all[i+1:]...)
			return
		}
	}
}

// matching returns a snapshot of the subscriptions that should receive event,
// type-specific handlers first, then wildcard handlers.
func (s *subscriptions) matching(event domain.Event) []subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	typed := s.byType[event.Type()]
	out := make([]subscription, 0, len(typed)+len(s.all))
	for _, sub := range typed {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		out = append(out, sub)
	}
	return append(out, s.all...)
}

func (s *subscriptions) has(eventType domain.EventType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byType[eventType]) > 0 || len(s.all) > 0
}

func (s *subscriptions) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := len(s.all)
	for _, subs := range s.byType {
		count += len(subs)
	}
	return count
}

func (s *subscriptions) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byType = make(map[domain.EventType][]subscription)
	s.all = make([]subscription, 0)
}

// callHandler calls an event handler and recovers from panics.
func callHandler(logger *slog.Logger, handler domain.EventHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			// Handler panicked - log it but don't crash
			if logger != nil {
				logger.Error("event handler panicked",
					slog.Any("panic", r),
					slog.String("event_type", string(event.Type())),
					slog.String("group_id", event.GroupID()))
			}
		}
	}()

	if logger != nil && logger.Enabled(context.Background(), slog.LevelDebug) {
		handlerName := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
		logger.Debug("event delivered",
			slog.String("event_type", string(event.Type())),
			slog.String("handler", handlerName))
	}
	handler(event)
}

// Verify that SyncEventBus implements the FilteringEventBus interface
var _ ports.FilteringEventBus = (*SyncEventBus)(nil)
