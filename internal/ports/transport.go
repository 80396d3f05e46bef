// Package ports define interfaces for dependency inversion.
// These interfaces allow the playback core to remain independent of the voice
// gateway library and of the media resolution services.
package ports

import (
	"context"

	"github.com/tejashwikalptaru/dtune/internal/domain"
)

// VoiceTransport is the interface for real-time voice delivery.
// This abstracts the voice gateway (Discord via disgo) and allows for testing with mocks.
//
// Implementations must be thread-safe as they may be called from multiple goroutines.
type VoiceTransport interface {
	// Connect starts establishing a voice connection for the channel.
	// It returns as soon as the attempt is underway; readiness is awaited with
	// VoiceConnection.WaitReady.
	//
	// Returns an error if the attempt cannot be started (bad ids, gateway closed).
	Connect(ctx context.Context, channel domain.ChannelDescriptor) (VoiceConnection, error)

	// CreatePlayer returns a new, unbound audio player.
	CreatePlayer() AudioPlayer
}

// VoiceConnection is a handle to one voice connection owned by the transport.
type VoiceConnection interface {
	// WaitReady blocks until the connection is ready to carry audio,
	// the connection fails, or ctx is done (returning ctx.Err()).
	WaitReady(ctx context.Context) error

	// Subscribe routes the player's audio to this connection.
	Subscribe(player AudioPlayer) error

	// Disconnect tears the connection down. Calling it more than once is a no-op.
	Disconnect(ctx context.Context) error

	// ChannelID returns the voice channel the connection targets.
	ChannelID() string
}

// PlayerStateChange is one notification of the player state-change stream.
type PlayerStateChange struct {
	Old domain.PlayerStatus
	New domain.PlayerStatus

	// Resource is the resource the transition refers to.
	// Listeners use it to tell stale completion signals from current ones.
	Resource *domain.Resource
}

// AudioPlayer is the transport's player handle.
//
// Binding a new resource while one is playing replaces it without emitting an
// Idle transition for the replaced resource.
//
// The player owns every resource passed to Play and closes it once the resource
// is stopped, replaced or finished.
type AudioPlayer interface {
	// Play binds the resource and starts sending it (bindResource).
	// The player reports Buffering, then Playing once audio flows.
	Play(res *domain.Resource) error

	// Stop unbinds the current resource. The player reports Idle for it.
	// Returns false if nothing was bound.
	Stop() bool

	// Pause pauses the bound resource. Returns whether the request was honored.
	Pause() bool

	// Resume resumes a paused resource. Returns whether the request was honored.
	Resume() bool

	// Status returns the current player status.
	Status() domain.PlayerStatus

	// OnStateChange registers a listener for state transitions.
	// Listeners are called from transport goroutines and must not block.
	// Returns a function that removes the listener.
	OnStateChange(listener func(PlayerStateChange)) (unsubscribe func())

	// Close stops playback and releases the player.
	Close() error
}
