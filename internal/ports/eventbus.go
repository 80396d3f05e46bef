package ports

import "github.com/tejashwikalptaru/dtune/internal/domain"

// EventBus carries session events such as TrackStarted and SessionDestroyed
// from the registry and its sessions to front-ends.
//
// Sessions publish outside their state lock but possibly mid-advance, so a
// synchronous handler must not start playback itself. Implementations are
// safe for concurrent use.
//
//	id := bus.Subscribe(domain.EventTrackStarted, func(e domain.Event) {
//		started := e.(domain.TrackStartedEvent)
//		announce(started.GroupID(), started.Track.Title)
//	})
//	defer bus.Unsubscribe(id)
type EventBus interface {
	// Publish delivers event to the handlers of its type and to catch-all
	// handlers. Events of one group reach a handler in publish order.
	Publish(event domain.Event)

	// Subscribe registers handler for one event type.
	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// SubscribeAll registers handler for every event type.
	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID

	// Unsubscribe removes a subscription. Unknown ids are ignored.
	Unsubscribe(id domain.SubscriptionID)

	// HasSubscribers reports whether an event of eventType would reach anyone.
	HasSubscribers(eventType domain.EventType) bool

	// Close stops delivery. Pending asynchronous events are drained first.
	Close() error
}

// EventFilter decides per event whether a filtered handler sees it.
type EventFilter func(event domain.Event) bool

// FilteringEventBus lets a front-end follow a single group, typically with
// eventbus.GroupFilter.
type FilteringEventBus interface {
	EventBus
	SubscribeFiltered(eventType domain.EventType, filter EventFilter, handler domain.EventHandler) domain.SubscriptionID
}
