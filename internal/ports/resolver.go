package ports

import (
	"context"

	"github.com/tejashwikalptaru/dtune/internal/domain"
)

// MediaResolver is the interface for metadata and stream resolution services.
// Implementations wrap YouTube clients (kkdai/youtube, ytsearch, ytmusic) or yt-dlp.
//
// Implementations must be thread-safe; tracks preload concurrently.
type MediaResolver interface {
	// FetchSingleMediaInfo returns full metadata for one media link.
	FetchSingleMediaInfo(ctx context.Context, url string) (*domain.MediaInfo, error)

	// FetchPlaylist enumerates a playlist in order.
	// Entries may carry only light metadata (MediaInfo.Partial).
	FetchPlaylist(ctx context.Context, url string) ([]domain.MediaInfo, error)

	// Search returns at most limit candidates, best match first.
	Search(ctx context.Context, query string, limit int) ([]domain.MediaInfo, error)

	// OpenStream returns a live stream handle for the link.
	// ctx bounds the lookup only; the stream stays open until closed.
	OpenStream(ctx context.Context, url string) (*domain.Resource, error)

	// Classify tells whether input is a media link, a playlist link,
	// another link or search text.
	Classify(input string) domain.QueryKind
}
