// Package track implements the playable queue entries.
//
// Every variant shares one base (identity, requester, resource cache) and plugs in
// its own resolution strategy: generic tracks stream their source URL directly,
// single media and playlist members ask a MediaResolver for a live stream.
package track

import (
	"context"
	"sync"
	"time"

	"github.com/tejashwikalptaru/dtune/internal/domain"
)

// Track is one playable queue entry.
//
// Implementations are safe for concurrent use: a background preload may run
// while the session produces the resource for playback.
type Track interface {
	// ID returns the provider-defined id, or a generated one.
	ID() string

	// Kind returns the variant discriminator.
	Kind() domain.TrackKind

	// SourceURL returns the link the track was built from.
	SourceURL() string

	// Title returns the display title.
	Title() string

	// Duration returns the track length, zero when unknown.
	Duration() time.Duration

	// RequesterID returns who queued the track, or "".
	RequesterID() string

	// Preload resolves and caches the resource. It returns nil if a resource is
	// already cached. Callers should avoid starting two preloads for one track;
	// a duplicate is wasted work, and the extra resource is closed. A preload
	// overtaken by ProduceResource or Release closes its result as well.
	Preload(ctx context.Context) error

	// ProduceResource returns the cached resource, resolving it first if absent.
	// Ownership of the resource passes to the caller and the cache is cleared,
	// so a later replay resolves a fresh stream.
	ProduceResource(ctx context.Context) (*domain.Resource, error)

	// Preloaded reports whether a resource is cached.
	Preloaded() bool

	// Release closes a cached resource that will never be played.
	Release()

	// Describe returns the read-only metadata view.
	Describe() domain.TrackInfo
}

// resolveFunc is the per-variant resolution strategy.
type resolveFunc func(ctx context.Context) (*domain.Resource, error)

// base holds what every variant shares.
type base struct {
	id        string
	sourceURL string
	requester string
	kind      domain.TrackKind
	resolve   resolveFunc

	mu       sync.Mutex
	resource *domain.Resource
	// gen changes whenever the cache is taken or dropped; a preload that
	// started under an older gen discards its result.
	gen uint64
}

func (b *base) ID() string             { return b.id }
func (b *base) Kind() domain.TrackKind { return b.kind }
func (b *base) SourceURL() string      { return b.sourceURL }
func (b *base) RequesterID() string    { return b.requester }

func (b *base) Preload(ctx context.Context) error {
	b.mu.Lock()
	if b.resource != nil {
		b.mu.Unlock()
		return nil
	}
	gen := b.gen
	b.mu.Unlock()

	res, err := b.resolve(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.resource != nil || b.gen != gen {
		b.mu.Unlock()
		_ = res.Close()
		return nil
	}
	b.resource = res
	b.mu.Unlock()
	return nil
}

func (b *base) ProduceResource(ctx context.Context) (*domain.Resource, error) {
	b.mu.Lock()
	b.gen++
	if res := b.resource; res != nil {
		b.resource = nil
		b.mu.Unlock()
		return res, nil
	}
	b.mu.Unlock()

	return b.resolve(ctx)
}

func (b *base) Preloaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resource != nil
}

func (b *base) Release() {
	b.mu.Lock()
	b.gen++
	res := b.resource
	b.resource = nil
	b.mu.Unlock()

	_ = res.Close()
}
