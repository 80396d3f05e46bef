// Package domain defines events for the event-driven architecture.
// Events notify the command layer about session lifecycle and playback progress.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time

	// GroupID returns the group (guild) the event belongs to
	GroupID() string
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Session lifecycle events
	EventSessionCreated   EventType = "session.created"
	EventJoinedChannel    EventType = "session.joined_channel"
	EventSessionDestroyed EventType = "session.destroyed"
	EventRepeatChanged    EventType = "session.repeat_changed"

	// Playback events
	EventTrackStarted   EventType = "track.started"
	EventTrackEnded     EventType = "track.ended"
	EventTrackSkipped   EventType = "track.skipped"
	EventTrackError     EventType = "track.error"
	EventPlaybackPaused EventType = "playback.paused"
	EventPlaybackResume EventType = "playback.resumed"

	// Queue events
	EventTrackAdded    EventType = "track.added"
	EventQueueShuffled EventType = "queue.shuffled"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
	groupID   string
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// GroupID returns the group the event belongs to.
func (e baseEvent) GroupID() string {
	return e.groupID
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent(groupID string) baseEvent {
	return baseEvent{timestamp: time.Now(), groupID: groupID}
}

// SessionCreatedEvent is published when the registry constructs a session.
type SessionCreatedEvent struct {
	baseEvent
}

// Type returns the event type.
func (e SessionCreatedEvent) Type() EventType {
	return EventSessionCreated
}

// NewSessionCreatedEvent creates a new SessionCreatedEvent.
func NewSessionCreatedEvent(groupID string) SessionCreatedEvent {
	return SessionCreatedEvent{baseEvent: newBaseEvent(groupID)}
}

// JoinedChannelEvent is published when a session's voice connection becomes ready.
type JoinedChannelEvent struct {
	baseEvent
	ChannelID string
	Moved     bool // True if a previous connection was replaced
}

// Type returns the event type.
func (e JoinedChannelEvent) Type() EventType {
	return EventJoinedChannel
}

// NewJoinedChannelEvent creates a new JoinedChannelEvent.
func NewJoinedChannelEvent(groupID, channelID string, moved bool) JoinedChannelEvent {
	return JoinedChannelEvent{
		baseEvent: newBaseEvent(groupID),
		ChannelID: channelID,
		Moved:     moved,
	}
}

// SessionDestroyedEvent is published right before a session releases its handles.
type SessionDestroyedEvent struct {
	baseEvent
}

// Type returns the event type.
func (e SessionDestroyedEvent) Type() EventType {
	return EventSessionDestroyed
}

// NewSessionDestroyedEvent creates a new SessionDestroyedEvent.
func NewSessionDestroyedEvent(groupID string) SessionDestroyedEvent {
	return SessionDestroyedEvent{baseEvent: newBaseEvent(groupID)}
}

// RepeatModeChangedEvent is published when the repeat policy changes.
type RepeatModeChangedEvent struct {
	baseEvent
	Mode RepeatMode
}

// Type returns the event type.
func (e RepeatModeChangedEvent) Type() EventType {
	return EventRepeatChanged
}

// NewRepeatModeChangedEvent creates a new RepeatModeChangedEvent.
func NewRepeatModeChangedEvent(groupID string, mode RepeatMode) RepeatModeChangedEvent {
	return RepeatModeChangedEvent{baseEvent: newBaseEvent(groupID), Mode: mode}
}

// TrackStartedEvent is published when the transport confirms playback of the head track.
type TrackStartedEvent struct {
	baseEvent
	Track      TrackInfo
	QueueLen   int
	RepeatMode RepeatMode
}

// Type returns the event type.
func (e TrackStartedEvent) Type() EventType {
	return EventTrackStarted
}

// NewTrackStartedEvent creates a new TrackStartedEvent.
func NewTrackStartedEvent(groupID string, track TrackInfo, queueLen int, mode RepeatMode) TrackStartedEvent {
	return TrackStartedEvent{
		baseEvent:  newBaseEvent(groupID),
		Track:      track,
		QueueLen:   queueLen,
		RepeatMode: mode,
	}
}

// TrackEndedEvent is published when the bound track finishes or is stopped.
type TrackEndedEvent struct {
	baseEvent
	Track TrackInfo
}

// Type returns the event type.
func (e TrackEndedEvent) Type() EventType {
	return EventTrackEnded
}

// NewTrackEndedEvent creates a new TrackEndedEvent.
func NewTrackEndedEvent(groupID string, track TrackInfo) TrackEndedEvent {
	return TrackEndedEvent{baseEvent: newBaseEvent(groupID), Track: track}
}

// TrackSkippedEvent is published before the player is told to stop on a skip.
type TrackSkippedEvent struct {
	baseEvent
	Track TrackInfo
}

// Type returns the event type.
func (e TrackSkippedEvent) Type() EventType {
	return EventTrackSkipped
}

// NewTrackSkippedEvent creates a new TrackSkippedEvent.
func NewTrackSkippedEvent(groupID string, track TrackInfo) TrackSkippedEvent {
	return TrackSkippedEvent{baseEvent: newBaseEvent(groupID), Track: track}
}

// TrackErrorEvent is published when a track fails outside of a caller's request
// (background preload, completion-driven advance).
type TrackErrorEvent struct {
	baseEvent
	Track TrackInfo
	Op    string
	Error error
}

// Type returns the event type.
func (e TrackErrorEvent) Type() EventType {
	return EventTrackError
}

// NewTrackErrorEvent creates a new TrackErrorEvent.
func NewTrackErrorEvent(groupID string, track TrackInfo, op string, err error) TrackErrorEvent {
	return TrackErrorEvent{
		baseEvent: newBaseEvent(groupID),
		Track:     track,
		Op:        op,
		Error:     err,
	}
}

// PlaybackPausedEvent is published when the transport honored a pause.
type PlaybackPausedEvent struct {
	baseEvent
}

// Type returns the event type.
func (e PlaybackPausedEvent) Type() EventType {
	return EventPlaybackPaused
}

// NewPlaybackPausedEvent creates a new PlaybackPausedEvent.
func NewPlaybackPausedEvent(groupID string) PlaybackPausedEvent {
	return PlaybackPausedEvent{baseEvent: newBaseEvent(groupID)}
}

// PlaybackResumedEvent is published when the transport honored a resume.
type PlaybackResumedEvent struct {
	baseEvent
}

// Type returns the event type.
func (e PlaybackResumedEvent) Type() EventType {
	return EventPlaybackResume
}

// NewPlaybackResumedEvent creates a new PlaybackResumedEvent.
func NewPlaybackResumedEvent(groupID string) PlaybackResumedEvent {
	return PlaybackResumedEvent{baseEvent: newBaseEvent(groupID)}
}

// TrackAddedEvent is published when a track is enqueued.
type TrackAddedEvent struct {
	baseEvent
	Track    TrackInfo
	Position int // 0-based index the track was inserted at
	QueueLen int
}

// Type returns the event type.
func (e TrackAddedEvent) Type() EventType {
	return EventTrackAdded
}

// NewTrackAddedEvent creates a new TrackAddedEvent.
func NewTrackAddedEvent(groupID string, track TrackInfo, position, queueLen int) TrackAddedEvent {
	return TrackAddedEvent{
		baseEvent: newBaseEvent(groupID),
		Track:     track,
		Position:  position,
		QueueLen:  queueLen,
	}
}

// QueueShuffledEvent is published after a shuffle.
type QueueShuffledEvent struct {
	baseEvent
	QueueLen int
}

// Type returns the event type.
func (e QueueShuffledEvent) Type() EventType {
	return EventQueueShuffled
}

// NewQueueShuffledEvent creates a new QueueShuffledEvent.
func NewQueueShuffledEvent(groupID string, queueLen int) QueueShuffledEvent {
	return QueueShuffledEvent{baseEvent: newBaseEvent(groupID), QueueLen: queueLen}
}
