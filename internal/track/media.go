package track

import (
	"context"
	"errors"
	"time"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

// Media is a track backed by a MediaResolver. It covers both single media links
// and playlist members; the latter carry a playlist position.
type Media struct {
	base
	info     domain.MediaInfo
	position int
}

// NewSingleMedia fetches full metadata for url and returns the track.
func NewSingleMedia(ctx context.Context, resolver ports.MediaResolver, url, requesterID string) (*Media, error) {
	info, err := resolver.FetchSingleMediaInfo(ctx, url)
	if err != nil {
		return nil, asResolutionError("fetch_info", url, err)
	}
	if info.URL == "" {
		info.URL = url
	}
	return newMedia(resolver, *info, domain.KindSingleMedia, 0, requesterID), nil
}

// NewPlaylistMember builds a track from a playlist enumeration entry.
// Entries flagged Partial keep their light view; position is 1-based.
func NewPlaylistMember(resolver ports.MediaResolver, entry domain.MediaInfo, position int, requesterID string) *Media {
	return newMedia(resolver, entry, domain.KindPlaylistMember, position, requesterID)
}

func newMedia(resolver ports.MediaResolver, info domain.MediaInfo, kind domain.TrackKind, position int, requesterID string) *Media {
	id := info.ID
	if id == "" {
		id = info.URL
	}

	m := &Media{
		base: base{
			id:        id,
			sourceURL: info.URL,
			requester: requesterID,
			kind:      kind,
		},
		info:     info,
		position: position,
	}
	m.resolve = func(ctx context.Context) (*domain.Resource, error) {
		res, err := resolver.OpenStream(ctx, info.URL)
		if err != nil {
			return nil, asResolutionError("open_stream", info.URL, err)
		}
		return res, nil
	}
	return m
}

// Title returns the display title, falling back to the URL for light entries.
func (m *Media) Title() string {
	if m.info.Title == "" {
		return m.sourceURL
	}
	return m.info.Title
}

// Duration returns the media length.
func (m *Media) Duration() time.Duration { return m.info.Duration }

// Position returns the 1-based playlist position, zero for single media.
func (m *Media) Position() int { return m.position }

// Partial reports whether only light metadata is known.
func (m *Media) Partial() bool { return m.info.Partial }

// Describe returns the read-only metadata view.
func (m *Media) Describe() domain.TrackInfo {
	return describe(&m.base, m.info, m.position)
}

// asResolutionError keeps collaborator errors that are already typed and wraps the rest.
func asResolutionError(op, url string, err error) error {
	var resErr *domain.ResolutionError
	if errors.As(err, &resErr) {
		return err
	}
	return domain.NewResolutionError(op, url, err)
}

var _ Track = (*Media)(nil)
