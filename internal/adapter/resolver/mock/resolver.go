// Package mock provides an in-memory MediaResolver for testing.
// It never touches the network; media, playlists and search results are registered up front.
package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tejashwikalptaru/dtune/internal/adapter/resolver"
	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

// ErrMock is returned by operations switched to failure mode.
var ErrMock = errors.New("mock resolver failure")

// Stream is the stream handed out by OpenStream. It records whether it was closed.
type Stream struct {
	io.Reader
	closed atomic.Bool
}

// Close marks the stream closed.
func (s *Stream) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}

// Resolver is a mock implementation of the MediaResolver interface.
//
// Thread-safety: All methods are thread-safe via mutex.
type Resolver struct {
	logger *slog.Logger

	mu        sync.Mutex
	media     map[string]domain.MediaInfo
	playlists map[string][]domain.MediaInfo
	searches  map[string][]domain.MediaInfo

	// Failure toggles for tests
	failInfo      bool
	failSearch    bool
	failPlaylist  bool
	failStream    bool
	failStreamFor map[string]bool
	streamDelay   time.Duration

	// Call counters
	infoCalls   map[string]int
	streamCalls map[string]int
}

// NewResolver creates a new mock resolver.
func NewResolver() *Resolver {
	return &Resolver{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		media:         make(map[string]domain.MediaInfo),
		playlists:     make(map[string][]domain.MediaInfo),
		searches:      make(map[string][]domain.MediaInfo),
		failStreamFor: make(map[string]bool),
		infoCalls:     make(map[string]int),
		streamCalls:   make(map[string]int),
	}
}

// SetLogger sets the logger for the mock resolver.
func (r *Resolver) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// AddMedia registers metadata returned by FetchSingleMediaInfo for info.URL.
func (r *Resolver) AddMedia(info domain.MediaInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media[info.URL] = info
}

// AddPlaylist registers the entries returned by FetchPlaylist for url.
func (r *Resolver) AddPlaylist(url string, entries []domain.MediaInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playlists[url] = entries
}

// AddSearchResults registers the candidates returned by Search for query.
func (r *Resolver) AddSearchResults(query string, results []domain.MediaInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches[strings.ToLower(query)] = results
}

// SetFailInfo makes FetchSingleMediaInfo fail.
func (r *Resolver) SetFailInfo(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failInfo = fail
}

// SetFailSearch makes Search fail.
func (r *Resolver) SetFailSearch(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSearch = fail
}

// SetFailPlaylist makes FetchPlaylist fail.
func (r *Resolver) SetFailPlaylist(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failPlaylist = fail
}

// SetFailStream makes every OpenStream call fail.
func (r *Resolver) SetFailStream(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failStream = fail
}

// SetFailStreamFor makes OpenStream fail for one URL only.
func (r *Resolver) SetFailStreamFor(url string, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failStreamFor[url] = fail
}

// SetStreamDelay makes OpenStream wait before returning (honoring ctx).
func (r *Resolver) SetStreamDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamDelay = d
}

// InfoCalls returns how many times FetchSingleMediaInfo was called for url.
func (r *Resolver) InfoCalls(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoCalls[url]
}

// StreamCalls returns how many times OpenStream was called for url.
func (r *Resolver) StreamCalls(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamCalls[url]
}

// FetchSingleMediaInfo returns registered metadata for url.
func (r *Resolver) FetchSingleMediaInfo(ctx context.Context, url string) (*domain.MediaInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.infoCalls[url]++
	if r.failInfo {
		return nil, ErrMock
	}

	info, ok := r.media[url]
	if !ok {
		return nil, fmt.Errorf("media %q not found", url)
	}
	r.logger.Debug("mock media info", slog.String("url", url))
	return &info, nil
}

// FetchPlaylist returns registered playlist entries for url.
func (r *Resolver) FetchPlaylist(ctx context.Context, url string) ([]domain.MediaInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failPlaylist {
		return nil, ErrMock
	}

	entries, ok := r.playlists[url]
	if !ok {
		return nil, fmt.Errorf("playlist %q not found", url)
	}
	out := make([]domain.MediaInfo, len(entries))
	copy(out, entries)
	return out, nil
}

// Search returns registered candidates for query, truncated to limit.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]domain.MediaInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failSearch {
		return nil, ErrMock
	}

	results := r.searches[strings.ToLower(query)]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]domain.MediaInfo, len(results))
	copy(out, results)
	return out, nil
}

// OpenStream returns a Stream over the URL text.
func (r *Resolver) OpenStream(ctx context.Context, url string) (*domain.Resource, error) {
	r.mu.Lock()
	r.streamCalls[url]++
	delay := r.streamDelay
	fail := r.failStream || r.failStreamFor[url]
	r.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail {
		return nil, ErrMock
	}

	return &domain.Resource{
		SourceURL: url,
		Stream:    &Stream{Reader: strings.NewReader(url)},
		InputType: domain.InputOggOpus,
	}, nil
}

// Classify uses registered playlists first, then the shared YouTube rules.
func (r *Resolver) Classify(input string) domain.QueryKind {
	r.mu.Lock()
	_, isPlaylist := r.playlists[input]
	_, isMedia := r.media[input]
	r.mu.Unlock()

	switch {
	case isPlaylist:
		return domain.QueryPlaylist
	case isMedia:
		return domain.QueryVideo
	default:
		return resolver.Classify(input)
	}
}

// Verify that Resolver implements the MediaResolver interface
var _ ports.MediaResolver = (*Resolver)(nil)
