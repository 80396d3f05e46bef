// Package youtube provides a MediaResolver backed by native YouTube clients.
// Metadata and streams come from kkdai/youtube; search goes through
// ppalone/ytsearch or raitonoberu/ytmusic depending on the configured source.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	"golang.org/x/time/rate"

	"github.com/tejashwikalptaru/dtune/internal/adapter/resolver"
	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

// Search sources.
const (
	SourceYouTube = "youtube"
	SourceYTMusic = "ytmusic"
)

const httpTimeout = 15 * time.Second

var (
	// ErrNoAudioFormat is returned when a video exposes no audio-carrying format.
	ErrNoAudioFormat = errors.New("no audio formats found for video")

	// ErrUnsupportedURL is returned for links outside YouTube.
	ErrUnsupportedURL = errors.New("unsupported url")
)

// Config configures the resolver.
type Config struct {
	// SearchSource is SourceYouTube or SourceYTMusic
	SearchSource string

	// Rate and Burst bound lookups against YouTube
	Rate  float64
	Burst int

	// Proxy is an optional http(s) proxy URL
	Proxy string
}

// Resolver resolves YouTube links and searches.
//
// Thread-safety: the underlying clients are safe for concurrent use and the
// limiter serializes nothing beyond the configured rate.
type Resolver struct {
	logger  *slog.Logger
	client  *youtube.Client
	http    *http.Client
	limiter *rate.Limiter
	source  string
}

// NewResolver creates a resolver from cfg.
func NewResolver(logger *slog.Logger, cfg Config) (*Resolver, error) {
	httpClient, err := newHTTPClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	source := cfg.SearchSource
	if source == "" {
		source = SourceYouTube
	}
	if source != SourceYouTube && source != SourceYTMusic {
		return nil, domain.NewValidationError("search_source", source, "must be youtube or ytmusic")
	}

	limit := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Resolver{
		logger:  logger.With(slog.String("adapter", "youtube")),
		client:  &youtube.Client{HTTPClient: httpClient},
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		source:  source,
	}, nil
}

// newHTTPClient builds a client with transport-level timeouts only. Stream
// bodies stay open for the length of a track.
func newHTTPClient(proxy string) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   httpTimeout,
		ResponseHeaderTimeout: httpTimeout,
	}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, domain.NewValidationError("proxy", proxy, err.Error())
		}
		if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
			return nil, domain.NewValidationError("proxy", proxy, "only http and https proxies are supported")
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{Transport: transport}, nil
}

// FetchSingleMediaInfo returns full metadata for one video link.
func (r *Resolver) FetchSingleMediaInfo(ctx context.Context, link string) (*domain.MediaInfo, error) {
	if !resolver.IsYouTubeURL(link) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, link)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	video, err := r.client.GetVideoContext(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	info := videoInfo(video)
	r.logger.Debug("video resolved",
		slog.String("id", info.ID),
		slog.String("title", info.Title),
		slog.Duration("duration", info.Duration))
	return &info, nil
}

// FetchPlaylist enumerates a playlist. Entries carry light metadata only.
func (r *Resolver) FetchPlaylist(ctx context.Context, link string) ([]domain.MediaInfo, error) {
	if !resolver.IsYouTubeURL(link) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, link)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	playlist, err := r.client.GetPlaylistContext(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}

	entries := make([]domain.MediaInfo, 0, len(playlist.Videos))
	for _, v := range playlist.Videos {
		if v == nil || v.ID == "" {
			continue
		}
		entries = append(entries, domain.MediaInfo{
			ID:        v.ID,
			URL:       resolver.WatchURL(v.ID),
			Title:     v.Title,
			Duration:  v.Duration,
			Author:    v.Author,
			Thumbnail: bestThumbnail(v.Thumbnails),
			Partial:   true,
		})
	}

	r.logger.Debug("playlist resolved",
		slog.String("id", playlist.ID),
		slog.String("title", playlist.Title),
		slog.Int("entries", len(entries)))
	return entries, nil
}

// Search returns at most limit candidates from the configured source.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]domain.MediaInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("query", query, "must not be empty")
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		results []domain.MediaInfo
		err     error
	)
	switch r.source {
	case SourceYTMusic:
		results, err = r.searchMusic(query)
	default:
		results, err = r.searchVideos(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	results = dedupe(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	r.logger.Debug("search completed",
		slog.String("query", query),
		slog.String("source", r.source),
		slog.Int("results", len(results)))
	return results, nil
}

func (r *Resolver) searchVideos(ctx context.Context, query string) ([]domain.MediaInfo, error) {
	res, err := ytsearch.NewClient(r.http).Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}

	out := make([]domain.MediaInfo, 0, len(res.Results))
	for _, v := range res.Results {
		if v.VideoID == "" {
			continue
		}
		out = append(out, domain.MediaInfo{
			ID:      v.VideoID,
			URL:     resolver.WatchURL(v.VideoID),
			Title:   v.Title,
			Author:  v.Channel,
			Partial: true,
		})
	}
	return out, nil
}

func (r *Resolver) searchMusic(query string) ([]domain.MediaInfo, error) {
	res, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return nil, fmt.Errorf("ytmusic search failed: %w", err)
	}

	out := make([]domain.MediaInfo, 0, len(res.Tracks))
	for _, t := range res.Tracks {
		if t == nil || t.VideoID == "" {
			continue
		}
		info := domain.MediaInfo{
			ID:       t.VideoID,
			URL:      resolver.WatchURL(t.VideoID),
			Title:    t.Title,
			Duration: time.Duration(t.Duration) * time.Second,
			Partial:  true,
		}
		if len(t.Artists) > 0 {
			info.Author = t.Artists[0].Name
			info.AuthorURL = resolver.ChannelURL(t.Artists[0].ID)
		}
		out = append(out, info)
	}
	return out, nil
}

// OpenStream opens the best audio format of the video as a live stream.
func (r *Resolver) OpenStream(ctx context.Context, link string) (*domain.Resource, error) {
	if !resolver.IsYouTubeURL(link) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, link)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	video, err := r.client.GetVideoContext(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	format, inputType, err := pickAudioFormat(video.Formats)
	if err != nil {
		return nil, err
	}

	// ctx bounds the lookup; the stream lives until the player closes it
	stream, size, err := r.client.GetStreamContext(context.WithoutCancel(ctx), video, format)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	r.logger.Debug("stream opened",
		slog.String("id", video.ID),
		slog.Int("itag", format.ItagNo),
		slog.String("mime", format.MimeType),
		slog.Int64("size", size))

	return &domain.Resource{
		SourceURL: link,
		Stream:    stream,
		InputType: inputType,
	}, nil
}

// Classify uses the shared YouTube link rules.
func (r *Resolver) Classify(input string) domain.QueryKind {
	return resolver.Classify(input)
}

// pickAudioFormat prefers opus in webm, then any audio-only format, then any
// format carrying audio.
func pickAudioFormat(formats youtube.FormatList) (*youtube.Format, domain.InputType, error) {
	withAudio := formats.WithAudioChannels()
	if len(withAudio) == 0 {
		return nil, "", ErrNoAudioFormat
	}

	var audioOnly *youtube.Format
	for i := range withAudio {
		f := &withAudio[i]
		mime := strings.ToLower(f.MimeType)
		if !strings.HasPrefix(mime, "audio/") {
			continue
		}
		if strings.Contains(mime, "webm") && strings.Contains(mime, "opus") {
			return f, domain.InputWebmOpus, nil
		}
		if audioOnly == nil {
			audioOnly = f
		}
	}
	if audioOnly != nil {
		return audioOnly, domain.InputArbitrary, nil
	}
	return &withAudio[0], domain.InputArbitrary, nil
}

func videoInfo(v *youtube.Video) domain.MediaInfo {
	return domain.MediaInfo{
		ID:        v.ID,
		URL:       resolver.WatchURL(v.ID),
		Title:     v.Title,
		Duration:  v.Duration,
		Author:    v.Author,
		AuthorURL: resolver.ChannelURL(v.ChannelID),
		Thumbnail: bestThumbnail(v.Thumbnails),
	}
}

func bestThumbnail(thumbs youtube.Thumbnails) string {
	var (
		best string
		area uint
	)
	for _, t := range thumbs {
		if a := t.Width * t.Height; best == "" || a > area {
			best, area = t.URL, a
		}
	}
	return best
}

func dedupe(results []domain.MediaInfo) []domain.MediaInfo {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// Verify that Resolver implements the MediaResolver interface
var _ ports.MediaResolver = (*Resolver)(nil)
