package track

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/google/uuid"

	"github.com/tejashwikalptaru/dtune/internal/domain"
)

// Generic streams its source URL directly. No external metadata lookup is made.
type Generic struct {
	base
	title    string
	author   string
	duration time.Duration
}

// NewGeneric creates a generic track whose title is the URL itself.
func NewGeneric(sourceURL, requesterID string) *Generic {
	g := &Generic{
		base: base{
			id:        uuid.NewString(),
			sourceURL: sourceURL,
			requester: requesterID,
			kind:      domain.KindGeneric,
		},
		title: sourceURL,
	}
	g.resolve = func(context.Context) (*domain.Resource, error) {
		return &domain.Resource{
			SourceURL: sourceURL,
			InputType: domain.InputArbitrary,
		}, nil
	}
	return g
}

// NewLocalFile creates a generic track for a file on disk, reading its tags when
// possible. A file without readable tags falls back to its base name.
func NewLocalFile(path, requesterID string) (*Generic, error) {
	path = strings.TrimPrefix(path, "file://")
	if _, err := os.Stat(path); err != nil {
		return nil, domain.NewResolutionError("probe", path, err)
	}

	g := NewGeneric(path, requesterID)
	g.title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	file, err := os.Open(path)
	if err != nil {
		return g, nil
	}
	defer file.Close()

	m, err := tag.ReadFrom(file)
	if err != nil {
		// No tags - keep the file name
		return g, nil
	}
	if title := strings.TrimSpace(m.Title()); title != "" {
		g.title = title
	}
	g.author = strings.TrimSpace(m.Artist())
	return g, nil
}

// Title returns the display title.
func (g *Generic) Title() string { return g.title }

// Duration returns zero; generic sources are not probed for length.
func (g *Generic) Duration() time.Duration { return g.duration }

// Describe returns the read-only metadata view.
func (g *Generic) Describe() domain.TrackInfo {
	return describe(&g.base, domain.MediaInfo{
		ID:       g.id,
		URL:      g.sourceURL,
		Title:    g.title,
		Author:   g.author,
		Duration: g.duration,
	}, 0)
}

var _ Track = (*Generic)(nil)
