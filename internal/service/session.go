// Package service provides the playback business logic for dtune.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
	"github.com/tejashwikalptaru/dtune/internal/track"
)

// Default session timeouts.
const (
	DefaultConnectTimeout       = 30 * time.Second
	DefaultPlaybackStartTimeout = 5 * time.Second
	DefaultDisconnectTimeout    = 5 * time.Second
)

// SessionConfig holds the timeouts applied by every session of a registry.
type SessionConfig struct {
	// ConnectTimeout bounds how long Join waits for the connection to become ready.
	ConnectTimeout time.Duration

	// PlaybackStartTimeout bounds how long StartNext waits for the player to report Playing.
	PlaybackStartTimeout time.Duration

	// DisconnectTimeout bounds teardown of a connection that is being replaced or destroyed.
	DisconnectTimeout time.Duration
}

// DefaultSessionConfig returns the default timeouts.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ConnectTimeout:       DefaultConnectTimeout,
		PlaybackStartTimeout: DefaultPlaybackStartTimeout,
		DisconnectTimeout:    DefaultDisconnectTimeout,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.PlaybackStartTimeout <= 0 {
		c.PlaybackStartTimeout = d.PlaybackStartTimeout
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = d.DisconnectTimeout
	}
	return c
}

// Session owns one group's queue, voice connection and player.
//
// The head of the queue (index 0) is the current track whenever a resource is
// bound. Completion signals from the player are tagged with the resource they
// refer to; a signal for a resource that is no longer bound is ignored, so a
// stale "finished" can never advance the queue twice.
//
// Sessions are created and destroyed through a Registry. Once destroyed, every
// method returns ErrSessionDestroyed.
//
// Thread-safety: All methods are safe for concurrent use. Advances (explicit
// StartNext calls and completion-driven ones) are serialized.
type Session struct {
	// Dependencies (injected)
	logger    *slog.Logger
	groupID   string
	transport ports.VoiceTransport
	bus       ports.EventBus
	registry  *Registry
	cfg       SessionConfig

	player      ports.AudioPlayer
	unsubscribe func()

	// lifetime is cancelled on destroy; background preloads run under it
	lifetime   context.Context
	cancel     context.CancelFunc
	background sync.WaitGroup
	// finishing tracks completion handlers. It is only added to while the
	// session is live, and only waited on from outside session goroutines.
	finishing sync.WaitGroup

	advanceMu sync.Mutex

	// State
	mu         sync.Mutex
	queue      []track.Track
	repeatMode domain.RepeatMode
	conn       ports.VoiceConnection
	joining    int
	isPlaying  bool
	isPaused   bool
	bound      *domain.Resource
	started    chan struct{}
	destroyed  bool
}

func newSession(
	logger *slog.Logger,
	groupID string,
	transport ports.VoiceTransport,
	bus ports.EventBus,
	registry *Registry,
	cfg SessionConfig,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		logger:    logger,
		groupID:   groupID,
		transport: transport,
		bus:       bus,
		registry:  registry,
		cfg:       cfg.withDefaults(),
		player:    transport.CreatePlayer(),
		lifetime:  ctx,
		cancel:    cancel,
	}
	s.unsubscribe = s.player.OnStateChange(s.handleStateChange)

	logger.Debug("session initialized")
	return s
}

// GroupID returns the group this session belongs to.
func (s *Session) GroupID() string {
	return s.groupID
}

// Join connects to a voice channel and routes the player to it.
// A previous connection is replaced and disconnected.
// Returns ErrConnectTimeout if the connection is not ready within the connect timeout.
func (s *Session) Join(ctx context.Context, channel domain.ChannelDescriptor) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return domain.ErrSessionDestroyed
	}
	s.joining++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.joining--
		s.mu.Unlock()
	}()

	if channel.GroupID == "" {
		channel.GroupID = s.groupID
	}

	s.logger.Debug("joining voice channel", slog.String("channel_id", channel.ChannelID))

	conn, err := s.transport.Connect(ctx, channel)
	if err != nil {
		return err
	}

	readyCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	if err := conn.WaitReady(readyCtx); err != nil {
		s.disconnect(conn)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: channel %s after %s", domain.ErrConnectTimeout, channel.ChannelID, s.cfg.ConnectTimeout)
		}
		return err
	}

	if err := conn.Subscribe(s.player); err != nil {
		s.disconnect(conn)
		return err
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		s.disconnect(conn)
		return domain.ErrSessionDestroyed
	}
	old := s.conn
	s.conn = conn
	s.mu.Unlock()

	moved := old != nil
	if moved {
		s.disconnect(old)
	}

	s.logger.Info("joined voice channel",
		slog.String("channel_id", conn.ChannelID()),
		slog.Bool("moved", moved))
	s.bus.Publish(domain.NewJoinedChannelEvent(s.groupID, conn.ChannelID(), moved))
	return nil
}

// Enqueue adds a track to the queue and returns the new queue length.
// With toFront the track becomes the next one to play: it is inserted right
// after the current track when something is bound, at the head otherwise.
func (s *Session) Enqueue(t track.Track, toFront bool) (int, error) {
	if t == nil {
		return 0, domain.ErrNilTrack
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return 0, domain.ErrSessionDestroyed
	}
	pos := len(s.queue)
	if toFront {
		pos = 0
		if s.bound != nil && len(s.queue) > 0 {
			pos = 1
		}
		s.queue = slices.Insert(s.queue, pos, t)
	} else {
		s.queue = append(s.queue, t)
	}
	n := len(s.queue)
	s.mu.Unlock()

	info := t.Describe()
	s.logger.Debug("track enqueued",
		slog.String("title", info.Title),
		slog.Int("position", pos),
		slog.Int("queue_len", n))
	s.bus.Publish(domain.NewTrackAddedEvent(s.groupID, info, pos, n))
	return n, nil
}

// StartNext plays the next track.
//
// With advance the head is first rotated by the repeat mode: dropped (none),
// moved to the tail (all) or kept (single). The new head is then resolved,
// bound to the player and awaited until the player reports Playing. With
// preloadNext the following track is resolved in the background.
//
// When the queue is empty after the rotation, the session destroys itself and
// StartNext returns nil. On error the failing head stays at index 0 so the
// caller may retry.
func (s *Session) StartNext(ctx context.Context, advance, preloadNext bool) error {
	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()

	return s.advanceLocked(ctx, advance, preloadNext)
}

// StartIfIdle starts the head like StartNext(ctx, false, preloadNext), but only
// when nothing is bound and no advance is in flight. It reports whether it
// started playback.
func (s *Session) StartIfIdle(ctx context.Context, preloadNext bool) (bool, error) {
	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false, domain.ErrSessionDestroyed
	}
	idle := s.bound == nil && !s.isPlaying
	s.mu.Unlock()

	if !idle {
		return false, nil
	}
	if err := s.advanceLocked(ctx, false, preloadNext); err != nil {
		return false, err
	}
	return true, nil
}

// advanceLocked requires advanceMu.
func (s *Session) advanceLocked(ctx context.Context, advance, preloadNext bool) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return domain.ErrSessionDestroyed
	}

	var oldHead, dropped track.Track
	if len(s.queue) > 0 {
		oldHead = s.queue[0]
	}
	if advance && s.repeatMode != domain.RepeatSingle && len(s.queue) > 0 {
		s.queue = slices.Delete(s.queue, 0, 1)
		if s.repeatMode == domain.RepeatAll {
			s.queue = append(s.queue, oldHead)
		} else {
			dropped = oldHead
		}
	}

	if len(s.queue) == 0 {
		prevBound := s.bound
		s.mu.Unlock()

		if dropped != nil {
			dropped.Release()
		}
		s.unbind(prevBound)

		s.logger.Info("queue exhausted")

		// ctx may be the lifetime context that teardown cancels
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DisconnectTimeout)
		defer cancel()
		return s.registry.destroySession(tctx, s)
	}

	head := s.queue[0]
	prevBound := s.bound
	s.mu.Unlock()

	if dropped != nil {
		dropped.Release()
	}

	res, err := head.ProduceResource(ctx)
	if err != nil {
		if head != oldHead {
			s.unbind(prevBound)
		}
		s.logger.Warn("failed to resolve track",
			slog.String("url", head.SourceURL()),
			slog.Any("error", err))
		return err
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		_ = res.Close()
		return domain.ErrSessionDestroyed
	}
	started := make(chan struct{})
	s.bound = res
	s.started = started
	s.mu.Unlock()

	if err := s.player.Play(res); err != nil {
		s.unbind(res)
		_ = res.Close()
		s.logger.Warn("failed to bind resource",
			slog.String("url", head.SourceURL()),
			slog.Any("error", err))
		return err
	}

	timer := time.NewTimer(s.cfg.PlaybackStartTimeout)
	defer timer.Stop()

	select {
	case <-started:
	case <-timer.C:
		s.unbind(res)
		s.logger.Warn("playback did not start",
			slog.String("url", head.SourceURL()),
			slog.Duration("timeout", s.cfg.PlaybackStartTimeout))
		return fmt.Errorf("%w: %s", domain.ErrPlaybackStartTimeout, head.SourceURL())
	case <-ctx.Done():
		s.unbind(res)
		return ctx.Err()
	case <-s.lifetime.Done():
		return domain.ErrSessionDestroyed
	}

	var next track.Track
	s.mu.Lock()
	if s.destroyed || s.bound != res {
		s.mu.Unlock()
		return domain.ErrSessionDestroyed
	}
	s.isPlaying = true
	s.isPaused = false
	if preloadNext && len(s.queue) > 1 && !s.queue[1].Preloaded() {
		next = s.queue[1]
		s.background.Add(1)
	}
	info := head.Describe()
	queueLen := len(s.queue)
	mode := s.repeatMode
	s.mu.Unlock()

	s.logger.Info("track started",
		slog.String("title", info.Title),
		slog.Int("queue_len", queueLen),
		slog.String("repeat", mode.String()))
	s.bus.Publish(domain.NewTrackStartedEvent(s.groupID, info, queueLen, mode))

	if next != nil {
		go s.preload(next)
	}
	return nil
}

// preload resolves t in the background; failures never touch the current track.
// The caller must have added to s.background.
func (s *Session) preload(t track.Track) {
	defer s.background.Done()

	if err := t.Preload(s.lifetime); err != nil {
		if s.lifetime.Err() != nil {
			return
		}
		s.logger.Warn("failed to preload next track",
			slog.String("url", t.SourceURL()),
			slog.Any("error", err))
		s.bus.Publish(domain.NewTrackErrorEvent(s.groupID, t.Describe(), "preload", err))
	}
}

// unbind clears res from the session and stops the player if res is still bound.
func (s *Session) unbind(res *domain.Resource) {
	if res == nil {
		return
	}

	s.mu.Lock()
	if s.bound != res {
		s.mu.Unlock()
		return
	}
	s.bound = nil
	s.started = nil
	s.isPlaying = false
	s.isPaused = false
	s.mu.Unlock()

	s.player.Stop()
}

// handleStateChange is the player listener. It runs on the transport's goroutine.
func (s *Session) handleStateChange(change ports.PlayerStateChange) {
	switch change.New {
	case domain.PlayerPlaying:
		s.mu.Lock()
		if change.Resource != nil && change.Resource == s.bound && s.started != nil {
			close(s.started)
			s.started = nil
		}
		s.mu.Unlock()

	case domain.PlayerIdle:
		if change.Old == domain.PlayerIdle || change.Resource == nil {
			return
		}
		s.mu.Lock()
		if s.destroyed || change.Resource != s.bound {
			s.mu.Unlock()
			return
		}
		s.finishing.Add(1)
		s.mu.Unlock()
		go s.handleFinished(change.Resource)
	}
}

// handleFinished advances after the bound resource finished or was stopped.
func (s *Session) handleFinished(res *domain.Resource) {
	defer s.finishing.Done()

	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()

	s.mu.Lock()
	if s.destroyed || res != s.bound {
		s.mu.Unlock()
		return
	}
	s.bound = nil
	s.started = nil
	s.isPlaying = false
	s.isPaused = false
	var ended domain.TrackInfo
	hasHead := len(s.queue) > 0
	if hasHead {
		ended = s.queue[0].Describe()
	}
	s.mu.Unlock()

	if hasHead {
		s.logger.Debug("track ended", slog.String("title", ended.Title))
		s.bus.Publish(domain.NewTrackEndedEvent(s.groupID, ended))
	}

	s.autoAdvance()
}

// autoAdvance requires advanceMu. A head that cannot be resolved is reported
// and dropped, and the next one is tried.
func (s *Session) autoAdvance() {
	ctx := s.lifetime
	advance := true

	for {
		err := s.advanceLocked(ctx, advance, true)
		if err == nil || errors.Is(err, domain.ErrSessionDestroyed) || ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		var failed track.Track
		if len(s.queue) > 0 {
			failed = s.queue[0]
		}
		s.mu.Unlock()

		var info domain.TrackInfo
		if failed != nil {
			info = failed.Describe()
		}
		s.logger.Warn("automatic advance failed",
			slog.String("title", info.Title),
			slog.Any("error", err))
		s.bus.Publish(domain.NewTrackErrorEvent(s.groupID, info, "advance", err))

		if !errors.Is(err, domain.ErrResolutionFailed) || failed == nil {
			return
		}

		s.mu.Lock()
		if len(s.queue) > 0 && s.queue[0] == failed {
			s.queue = slices.Delete(s.queue, 0, 1)
		}
		s.mu.Unlock()
		failed.Release()

		advance = false
	}
}

// Skip stops the current track; the completion signal then advances the queue.
// It reports whether the player was stopped, and is a no-op on an empty queue.
func (s *Session) Skip() (bool, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false, domain.ErrSessionDestroyed
	}
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	info := s.queue[0].Describe()
	s.mu.Unlock()

	s.logger.Debug("skipping track", slog.String("title", info.Title))
	s.bus.Publish(domain.NewTrackSkippedEvent(s.groupID, info))
	return s.player.Stop(), nil
}

// Pause pauses playback. It reports false when nothing is playing.
func (s *Session) Pause() (bool, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false, domain.ErrSessionDestroyed
	}
	if !s.isPlaying || s.isPaused {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	if !s.player.Pause() {
		return false, nil
	}

	s.mu.Lock()
	s.isPaused = s.isPlaying
	s.mu.Unlock()

	s.logger.Debug("playback paused")
	s.bus.Publish(domain.NewPlaybackPausedEvent(s.groupID))
	return true, nil
}

// Resume resumes paused playback. It reports false when nothing is paused.
func (s *Session) Resume() (bool, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false, domain.ErrSessionDestroyed
	}
	if !s.isPaused {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	if !s.player.Resume() {
		return false, nil
	}

	s.mu.Lock()
	s.isPaused = false
	s.mu.Unlock()

	s.logger.Debug("playback resumed")
	s.bus.Publish(domain.NewPlaybackResumedEvent(s.groupID))
	return true, nil
}

// SetRepeatMode changes the looping policy applied on the next advance.
func (s *Session) SetRepeatMode(mode domain.RepeatMode) error {
	if !mode.Valid() {
		return domain.NewValidationError("repeat_mode", int(mode), domain.ErrInvalidRepeatMode.Error())
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return domain.ErrSessionDestroyed
	}
	s.repeatMode = mode
	s.mu.Unlock()

	s.logger.Debug("repeat mode changed", slog.String("mode", mode.String()))
	s.bus.Publish(domain.NewRepeatModeChangedEvent(s.groupID, mode))
	return nil
}

// Shuffle randomly permutes every track after the head. The head never moves.
func (s *Session) Shuffle() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return domain.ErrSessionDestroyed
	}
	if len(s.queue) > 2 {
		rest := s.queue[1:]
		rand.Shuffle(len(rest), func(i, j int) {
			rest[i], rest[j] = rest[j], rest[i]
		})
	}
	n := len(s.queue)
	s.mu.Unlock()

	s.logger.Debug("queue shuffled", slog.Int("queue_len", n))
	s.bus.Publish(domain.NewQueueShuffledEvent(s.groupID, n))
	return nil
}

// QueueView is a read-only window over the queue.
type QueueView struct {
	// Start and Stop are the clamped bounds of the window.
	Start, Stop int

	// Length is the full queue length.
	Length int

	// Tracks holds the tracks in the window.
	Tracks []track.Track

	// Infos holds the metadata of the tracks in the window. Nil unless summarized.
	Infos []domain.TrackInfo
}

// QueueView returns the tracks in [start, stop). A negative stop, or one past
// the end, means the end of the queue. With summarized the metadata of each
// track is included.
func (s *Session) QueueView(start, stop int, summarized bool) (QueueView, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return QueueView{}, domain.ErrSessionDestroyed
	}
	n := len(s.queue)
	if stop < 0 || stop > n {
		stop = n
	}
	if start < 0 {
		start = 0
	}
	if start > stop {
		start = stop
	}
	tracks := slices.Clone(s.queue[start:stop])
	s.mu.Unlock()

	view := QueueView{
		Start:  start,
		Stop:   stop,
		Length: n,
		Tracks: tracks,
	}
	if summarized {
		view.Infos = make([]domain.TrackInfo, len(tracks))
		for i, t := range tracks {
			view.Infos[i] = t.Describe()
		}
	}
	return view, nil
}

// NowPlaying returns the head's metadata while a resource is bound.
func (s *Session) NowPlaying() (domain.TrackInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed || !s.isPlaying || len(s.queue) == 0 {
		return domain.TrackInfo{}, false
	}
	return s.queue[0].Describe(), true
}

// State returns the observable session state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.destroyed:
		return domain.StateIdle
	case s.isPaused:
		return domain.StatePaused
	case s.isPlaying:
		return domain.StatePlaying
	case s.joining > 0:
		return domain.StateJoining
	case s.conn != nil:
		return domain.StateReady
	default:
		return domain.StateIdle
	}
}

// RepeatMode returns the current looping policy.
func (s *Session) RepeatMode() domain.RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeatMode
}

// Len returns the queue length.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// IsPlaying reports whether a resource is bound (playing or paused).
func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPlaying
}

// IsPaused reports whether playback is paused.
func (s *Session) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPaused
}

// Connected reports whether the session holds a voice connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// ChannelID returns the connected channel, or "".
func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.ChannelID()
}

// Destroyed reports whether the session was destroyed.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// markDestroyed flips the destroyed flag. Only the first caller gets true.
func (s *Session) markDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	s.destroyed = true
	return true
}

// release tears the session down after markDestroyed. It must not take advanceMu.
func (s *Session) release(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	queue := s.queue
	s.conn = nil
	s.queue = nil
	s.bound = nil
	s.started = nil
	s.isPlaying = false
	s.isPaused = false
	s.mu.Unlock()

	s.cancel()
	s.background.Wait()
	s.unsubscribe()

	var errs []error
	if err := s.player.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close player: %w", err))
	}
	if conn != nil {
		if err := conn.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect: %w", err))
		}
	}
	for _, t := range queue {
		t.Release()
	}

	return errors.Join(errs...)
}

func (s *Session) disconnect(conn ports.VoiceConnection) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DisconnectTimeout)
	defer cancel()

	if err := conn.Disconnect(ctx); err != nil {
		s.logger.Warn("failed to disconnect",
			slog.String("channel_id", conn.ChannelID()),
			slog.Any("error", err))
	}
}
