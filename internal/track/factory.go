package track

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

// DefaultSearchLimit is the number of candidates returned by Factory.Search.
const DefaultSearchLimit = 10

// Factory turns user queries into tracks through a MediaResolver.
type Factory struct {
	logger      *slog.Logger
	resolver    ports.MediaResolver
	allowLocal  bool
	searchLimit int
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithLocalFiles lets queries that name an existing file on disk become local tracks.
func WithLocalFiles(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowLocal = allow
	}
}

// WithSearchLimit sets how many candidates Search returns.
func WithSearchLimit(limit int) FactoryOption {
	return func(f *Factory) {
		if limit > 0 {
			f.searchLimit = limit
		}
	}
}

// NewFactory creates a new track factory.
func NewFactory(logger *slog.Logger, resolver ports.MediaResolver, opts ...FactoryOption) *Factory {
	f := &Factory{
		logger:      logger,
		resolver:    resolver,
		searchLimit: DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FromQuery resolves a query into one or more tracks:
//   - a media link becomes one single-media track,
//   - a playlist link becomes its members in order (positions start at 1),
//   - any other link becomes a generic track,
//   - anything else is searched and the first result is used.
func (f *Factory) FromQuery(ctx context.Context, query, requesterID string) ([]Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("query", query, "query must not be empty")
	}

	if f.allowLocal && isLocalFile(query) {
		t, err := NewLocalFile(query, requesterID)
		if err != nil {
			return nil, err
		}
		return []Track{t}, nil
	}

	kind := f.resolver.Classify(query)
	f.logger.Debug("resolving query",
		slog.String("query", query),
		slog.String("kind", kind.String()))

	switch kind {
	case domain.QueryVideo:
		t, err := NewSingleMedia(ctx, f.resolver, query, requesterID)
		if err != nil {
			return nil, err
		}
		return []Track{t}, nil

	case domain.QueryPlaylist:
		return f.fromPlaylist(ctx, query, requesterID)

	case domain.QueryURL:
		return []Track{NewGeneric(query, requesterID)}, nil

	default:
		results, err := f.resolver.Search(ctx, query, 1)
		if err != nil {
			return nil, asResolutionError("search", query, err)
		}
		if len(results) == 0 {
			return nil, domain.NewResolutionError("search", query, domain.ErrNoResults)
		}
		t, err := NewSingleMedia(ctx, f.resolver, results[0].URL, requesterID)
		if err != nil {
			return nil, err
		}
		return []Track{t}, nil
	}
}

func (f *Factory) fromPlaylist(ctx context.Context, url, requesterID string) ([]Track, error) {
	entries, err := f.resolver.FetchPlaylist(ctx, url)
	if err != nil {
		return nil, asResolutionError("fetch_playlist", url, err)
	}
	if len(entries) == 0 {
		return nil, domain.NewResolutionError("fetch_playlist", url, domain.ErrNoResults)
	}

	tracks := make([]Track, 0, len(entries))
	for i, entry := range entries {
		if entry.URL == "" {
			f.logger.Warn("skipping playlist entry without url",
				slog.String("playlist", url),
				slog.Int("position", i+1))
			continue
		}
		tracks = append(tracks, NewPlaylistMember(f.resolver, entry, i+1, requesterID))
	}
	if len(tracks) == 0 {
		return nil, domain.NewResolutionError("fetch_playlist", url, domain.ErrNoResults)
	}

	f.logger.Debug("playlist resolved",
		slog.String("playlist", url),
		slog.Int("tracks", len(tracks)))
	return tracks, nil
}

// Search returns candidates for a picker without building tracks.
func (f *Factory) Search(ctx context.Context, query string) ([]domain.MediaInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("query", query, "query must not be empty")
	}
	results, err := f.resolver.Search(ctx, query, f.searchLimit)
	if err != nil {
		return nil, asResolutionError("search", query, err)
	}
	return results, nil
}

// FromURL builds a generic track for a direct link without any lookup.
func (f *Factory) FromURL(url, requesterID string) (Track, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, domain.NewValidationError("url", url, "url must not be empty")
	}
	return NewGeneric(url, requesterID), nil
}

func isLocalFile(query string) bool {
	path := strings.TrimPrefix(query, "file://")
	if path != query || filepath.IsAbs(path) {
		info, err := os.Stat(path)
		return err == nil && info.Mode().IsRegular()
	}
	return false
}
