package service

import (
	"context"
	"log/slog"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/track"
)

// AddOptions controls how AddTracks queues tracks.
type AddOptions struct {
	// ToFront queues the tracks to play next, keeping their order.
	ToFront bool

	// DontStart leaves an idle session idle.
	DontStart bool

	// Create creates the session if the group has none.
	Create bool
}

// AddResult describes what AddTracks did.
type AddResult struct {
	// Session is the session the tracks were added to.
	Session *Session

	// First is the metadata of the first added track.
	First domain.TrackInfo

	// Added is the number of tracks queued.
	Added int

	// QueueLen is the queue length after queuing.
	QueueLen int

	// Playlist reports whether the tracks came from a playlist.
	Playlist bool

	// Started reports whether playback was started by this call.
	Started bool
}

// Controller is the front-end facing facade over the registry and the track
// factory. Every method addresses a session by group id.
type Controller struct {
	// Dependencies (injected)
	logger   *slog.Logger
	registry *Registry
	factory  *track.Factory
}

// NewController creates a new controller.
func NewController(logger *slog.Logger, registry *Registry, factory *track.Factory) *Controller {
	logger = logger.With(slog.String("service", "controller"))
	logger.Debug("controller initialized")

	return &Controller{
		logger:   logger,
		registry: registry,
		factory:  factory,
	}
}

// Registry returns the underlying session registry.
func (c *Controller) Registry() *Registry {
	return c.registry
}

func (c *Controller) session(groupID string, create bool) (*Session, error) {
	if create {
		return c.registry.GetOrCreate(groupID), nil
	}
	s, ok := c.registry.Get(groupID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// JoinVoiceChannel connects the group's session to channel. A connected
// session is left alone unless force is set.
func (c *Controller) JoinVoiceChannel(
	ctx context.Context,
	groupID string,
	channel domain.ChannelDescriptor,
	create, force bool,
) (*Session, error) {
	s, err := c.session(groupID, create)
	if err != nil {
		return nil, err
	}
	if s.Connected() && !force {
		return s, nil
	}
	if err := s.Join(ctx, channel); err != nil {
		return nil, err
	}
	return s, nil
}

// AddTracks queues tracks on the group's session and starts playback if the
// session is idle.
func (c *Controller) AddTracks(
	ctx context.Context,
	groupID string,
	tracks []track.Track,
	opts AddOptions,
) (AddResult, error) {
	if len(tracks) == 0 {
		return AddResult{}, domain.NewValidationError("tracks", 0, "at least one track is required")
	}

	s, err := c.session(groupID, opts.Create)
	if err != nil {
		return AddResult{}, err
	}

	result := AddResult{
		Session:  s,
		First:    tracks[0].Describe(),
		Playlist: len(tracks) > 1,
	}

	if opts.ToFront {
		for i := len(tracks) - 1; i >= 0; i-- {
			n, err := s.Enqueue(tracks[i], true)
			if err != nil {
				return result, err
			}
			result.Added++
			result.QueueLen = n
		}
	} else {
		for _, t := range tracks {
			n, err := s.Enqueue(t, false)
			if err != nil {
				return result, err
			}
			result.Added++
			result.QueueLen = n
		}
	}

	c.logger.Info("tracks added",
		slog.String("group_id", groupID),
		slog.Int("added", result.Added),
		slog.Int("queue_len", result.QueueLen),
		slog.Bool("to_front", opts.ToFront))

	if opts.DontStart {
		return result, nil
	}
	started, err := s.StartIfIdle(ctx, true)
	result.Started = started
	return result, err
}

// Play resolves query, joins channel if needed and queues the result.
// A session created by this call is destroyed again if joining fails.
func (c *Controller) Play(
	ctx context.Context,
	groupID string,
	channel domain.ChannelDescriptor,
	query, requesterID string,
) (AddResult, error) {
	tracks, err := c.factory.FromQuery(ctx, query, requesterID)
	if err != nil {
		c.logger.Warn("failed to resolve query",
			slog.String("group_id", groupID),
			slog.String("query", query),
			slog.Any("error", err))
		return AddResult{}, err
	}

	_, existed := c.registry.Get(groupID)
	s := c.registry.GetOrCreate(groupID)
	if !s.Connected() {
		if err := s.Join(ctx, channel); err != nil {
			if !existed {
				_ = c.registry.Destroy(context.WithoutCancel(ctx), groupID)
			}
			return AddResult{}, err
		}
	}

	result, err := c.AddTracks(ctx, groupID, tracks, AddOptions{Create: true})
	// A playlist link with a single entry is still a playlist
	if result.Added > 0 && tracks[0].Kind() == domain.KindPlaylistMember {
		result.Playlist = true
	}
	return result, err
}

// Search returns candidates for a picker.
func (c *Controller) Search(ctx context.Context, query string) ([]domain.MediaInfo, error) {
	return c.factory.Search(ctx, query)
}

// Skip skips the group's current track.
func (c *Controller) Skip(groupID string) (bool, error) {
	s, err := c.session(groupID, false)
	if err != nil {
		return false, err
	}
	return s.Skip()
}

// Pause pauses the group's playback.
func (c *Controller) Pause(groupID string) (bool, error) {
	s, err := c.session(groupID, false)
	if err != nil {
		return false, err
	}
	return s.Pause()
}

// Resume resumes the group's playback.
func (c *Controller) Resume(groupID string) (bool, error) {
	s, err := c.session(groupID, false)
	if err != nil {
		return false, err
	}
	return s.Resume()
}

// Shuffle shuffles the group's upcoming tracks.
func (c *Controller) Shuffle(groupID string) error {
	s, err := c.session(groupID, false)
	if err != nil {
		return err
	}
	return s.Shuffle()
}

// SetRepeatMode changes the group's looping policy.
func (c *Controller) SetRepeatMode(groupID string, mode domain.RepeatMode) error {
	s, err := c.session(groupID, false)
	if err != nil {
		return err
	}
	return s.SetRepeatMode(mode)
}

// Queue returns a window over the group's queue.
func (c *Controller) Queue(groupID string, start, stop int, summarized bool) (QueueView, error) {
	s, err := c.session(groupID, false)
	if err != nil {
		return QueueView{}, err
	}
	return s.QueueView(start, stop, summarized)
}

// NowPlaying returns the group's current track.
func (c *Controller) NowPlaying(groupID string) (domain.TrackInfo, bool) {
	s, ok := c.registry.Get(groupID)
	if !ok {
		return domain.TrackInfo{}, false
	}
	return s.NowPlaying()
}

// Stop destroys the group's session. Unlike Registry.Destroy it reports
// ErrSessionNotFound when there is nothing to stop.
func (c *Controller) Stop(ctx context.Context, groupID string) error {
	if _, ok := c.registry.Get(groupID); !ok {
		return domain.ErrSessionNotFound
	}
	return c.registry.Destroy(ctx, groupID)
}
