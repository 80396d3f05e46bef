package track

import (
	"github.com/tejashwikalptaru/dtune/internal/domain"
)

// describe is the metadata formatting shared by every variant.
func describe(b *base, info domain.MediaInfo, position int) domain.TrackInfo {
	title := info.Title
	if title == "" {
		title = b.sourceURL
	}
	duration := info.Duration
	if duration < 0 {
		duration = 0
	}

	return domain.TrackInfo{
		ID:                b.id,
		URL:               b.sourceURL,
		Title:             title,
		Duration:          duration,
		DurationFormatted: domain.FormatDuration(duration),
		Author:            info.Author,
		AuthorURL:         info.AuthorURL,
		AuthorThumbnail:   info.AuthorThumbnail,
		Thumbnail:         info.Thumbnail,
		Kind:              b.kind,
		PlaylistPosition:  position,
		RequesterID:       b.requester,
	}
}
