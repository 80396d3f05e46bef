package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

// Registry maps group ids to their live session. It guarantees at most one
// live session per group.
//
// Thread-safety: All methods are safe for concurrent use.
type Registry struct {
	// Dependencies (injected)
	logger    *slog.Logger
	base      *slog.Logger
	transport ports.VoiceTransport
	bus       ports.EventBus
	cfg       SessionConfig

	// State
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(
	logger *slog.Logger,
	transport ports.VoiceTransport,
	bus ports.EventBus,
	cfg SessionConfig,
) *Registry {
	r := &Registry{
		logger:    logger.With(slog.String("service", "registry")),
		base:      logger,
		transport: transport,
		bus:       bus,
		cfg:       cfg.withDefaults(),
		sessions:  make(map[string]*Session),
	}
	r.logger.Debug("session registry initialized")
	return r
}

// GetOrCreate returns the live session for groupID, creating one if absent.
// A destroyed session left in the map is replaced.
func (r *Registry) GetOrCreate(groupID string) *Session {
	r.mu.Lock()
	if s, ok := r.sessions[groupID]; ok && !s.Destroyed() {
		r.mu.Unlock()
		return s
	}

	logger := r.base.With(
		slog.String("service", "session"),
		slog.String("group_id", groupID))
	s := newSession(logger, groupID, r.transport, r.bus, r, r.cfg)
	r.sessions[groupID] = s
	r.mu.Unlock()

	r.logger.Info("session created", slog.String("group_id", groupID))
	r.bus.Publish(domain.NewSessionCreatedEvent(groupID))
	return s
}

// Get returns the live session for groupID.
func (r *Registry) Get(groupID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[groupID]
	if !ok || s.Destroyed() {
		return nil, false
	}
	return s, true
}

// Destroy tears down the session for groupID and removes it.
// Destroying a group without a session, or one already being destroyed, is a no-op.
func (r *Registry) Destroy(ctx context.Context, groupID string) error {
	r.mu.Lock()
	s, ok := r.sessions[groupID]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.destroySession(ctx, s)
}

// destroySession publishes SessionDestroyed, releases s and removes it if it
// is still the registered session for its group.
func (r *Registry) destroySession(ctx context.Context, s *Session) error {
	if !s.markDestroyed() {
		return nil
	}

	r.bus.Publish(domain.NewSessionDestroyedEvent(s.groupID))

	err := s.release(ctx)

	r.mu.Lock()
	if r.sessions[s.groupID] == s {
		delete(r.sessions, s.groupID)
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("session destroyed with errors",
			slog.String("group_id", s.groupID),
			slog.Any("error", err))
	} else {
		r.logger.Info("session destroyed", slog.String("group_id", s.groupID))
	}
	return err
}

// Shutdown destroys every session.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	r.logger.Info("shutting down sessions", slog.Int("count", len(sessions)))

	var errs []error
	for _, s := range sessions {
		if err := r.destroySession(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	// Every session is marked destroyed now, so no new handler can start
	for _, s := range sessions {
		s.finishing.Wait()
	}
	return errors.Join(errs...)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sessions {
		if !s.Destroyed() {
			n++
		}
	}
	return n
}

// GroupIDs returns the ids of every live session, sorted.
func (r *Registry) GroupIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if !s.Destroyed() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
