// Package ytdlp provides a MediaResolver that shells out to yt-dlp.
// It handles YouTube as well as every other site yt-dlp can extract.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
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

// Fields printed for every entry, tab separated.
const printTemplate = "%(id)s\t%(url)s\t%(webpage_url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(channel_url)s\t%(thumbnail)s"

const audioFormat = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"

// waitDelay bounds how long a killed process may hold its output pipes.
const waitDelay = 2 * time.Second

// ErrNoOutput is returned when yt-dlp prints nothing usable.
var ErrNoOutput = errors.New("yt-dlp returned no entries")

// Config configures the resolver.
type Config struct {
	// Executable overrides the yt-dlp binary path
	Executable string

	// SearchSource is SourceYouTube or SourceYTMusic
	SearchSource string

	// Rate and Burst bound yt-dlp invocations
	Rate  float64
	Burst int

	// Proxy is passed to yt-dlp as --proxy
	Proxy string

	// PlaylistLimit caps playlist enumeration (zero means 200)
	PlaylistLimit int
}

// Resolver resolves media through the yt-dlp binary.
//
// Thread-safety: every call builds its own command; the limiter is shared.
type Resolver struct {
	logger  *slog.Logger
	cfg     Config
	limiter *rate.Limiter
}

// NewResolver creates a resolver from cfg.
func NewResolver(logger *slog.Logger, cfg Config) (*Resolver, error) {
	if cfg.SearchSource == "" {
		cfg.SearchSource = SourceYouTube
	}
	if cfg.SearchSource != SourceYouTube && cfg.SearchSource != SourceYTMusic {
		return nil, domain.NewValidationError("search_source", cfg.SearchSource, "must be youtube or ytmusic")
	}
	if cfg.PlaylistLimit <= 0 {
		cfg.PlaylistLimit = 200
	}

	limit := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		limit = rate.Inf
	}
	burst := max(cfg.Burst, 1)

	return &Resolver{
		logger:  logger.With(slog.String("adapter", "ytdlp")),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// command returns a yt-dlp command carrying the shared flags.
func (r *Resolver) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		NoCheckCertificates()

	if r.cfg.Executable != "" {
		cmd.SetExecutable(r.cfg.Executable)
	}
	if r.cfg.Proxy != "" {
		cmd.Proxy(r.cfg.Proxy)
	}
	return cmd
}

// extraArgs are flags passed verbatim ahead of the target.
func extraArgs(target string) []string {
	return []string{
		"--extractor-args", "youtube:player_client=android,web",
		"--socket-timeout", "30",
		"--retries", "10",
		target,
	}
}

func (r *Resolver) run(ctx context.Context, cmd *ytdlp.Command, target string) ([]domain.MediaInfo, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := cmd.Run(ctx, extraArgs(target)...)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, lastLine(res.Stderr))
		}
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}
	return parseEntries(res.Stdout), nil
}

// FetchSingleMediaInfo returns full metadata for one media link.
func (r *Resolver) FetchSingleMediaInfo(ctx context.Context, link string) (*domain.MediaInfo, error) {
	entries, err := r.run(ctx,
		r.command().Print(printTemplate).NoPlaylist(),
		normalize(link))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoOutput
	}

	info := entries[0]
	r.logger.Debug("media resolved",
		slog.String("id", info.ID),
		slog.String("title", info.Title),
		slog.Duration("duration", info.Duration))
	return &info, nil
}

// FetchPlaylist enumerates a playlist without resolving each entry.
func (r *Resolver) FetchPlaylist(ctx context.Context, link string) ([]domain.MediaInfo, error) {
	entries, err := r.run(ctx,
		r.command().
			FlatPlaylist().
			Print(printTemplate).
			PlaylistItems(fmt.Sprintf("1-%d", r.cfg.PlaylistLimit)),
		normalize(link))
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].Partial = true
	}
	r.logger.Debug("playlist resolved", slog.String("url", link), slog.Int("entries", len(entries)))
	return entries, nil
}

// Search runs a ytsearch (or ytmsearch) query.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]domain.MediaInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("query", query, "must not be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	entries, err := r.run(ctx,
		r.command().
			FlatPlaylist().
			Print(printTemplate).
			PlaylistItems(fmt.Sprintf("1-%d", limit)),
		searchTarget(r.cfg.SearchSource, query, limit))
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].Partial = true
	}
	r.logger.Debug("search completed",
		slog.String("query", query),
		slog.String("source", r.cfg.SearchSource),
		slog.Int("results", len(entries)))
	return entries, nil
}

// OpenStream starts yt-dlp writing the best audio format to stdout.
// Closing the returned stream stops the process.
func (r *Resolver) OpenStream(ctx context.Context, link string) (*domain.Resource, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// ctx bounds the lookup; the process lives until the player closes the stream
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := r.command().
		Format(audioFormat).
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		BuildCommand(procCtx, extraArgs(normalize(link))...)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	stream := newProcessStream(r.logger, cmd, stdout, cancel, &stderr)
	if err := stream.waitFirstByte(ctx); err != nil {
		_ = stream.Close()
		return nil, err
	}

	r.logger.Debug("stream opened", slog.String("url", link), slog.Int("pid", cmd.Process.Pid))
	return &domain.Resource{
		SourceURL: link,
		Stream:    stream,
		InputType: domain.InputArbitrary,
	}, nil
}

// Classify uses the shared YouTube rules. Links to other sites are treated as
// single media, since yt-dlp extracts them too.
func (r *Resolver) Classify(input string) domain.QueryKind {
	kind := resolver.Classify(input)
	if kind == domain.QueryURL {
		return domain.QueryVideo
	}
	return kind
}

func searchTarget(source, query string, limit int) string {
	prefix := "ytsearch"
	if source == SourceYTMusic {
		prefix = "ytmsearch"
	}
	return fmt.Sprintf("%s%d:%s", prefix, limit, query)
}

// normalize rewrites YouTube Music links to the regular site, which yt-dlp extracts more reliably.
func normalize(link string) string {
	return strings.Replace(link, "music.youtube.com", "www.youtube.com", 1)
}

// parseEntries reads printTemplate lines. Lines with too few fields are skipped.
func parseEntries(out string) []domain.MediaInfo {
	var entries []domain.MediaInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 8 {
			continue
		}
		for i := range fields {
			fields[i] = na(fields[i])
		}

		id, flatURL, pageURL := fields[0], fields[1], fields[2]
		info := domain.MediaInfo{
			ID:        id,
			URL:       entryURL(id, flatURL, pageURL),
			Title:     fields[3],
			Author:    fields[4],
			Duration:  parseDuration(fields[5]),
			AuthorURL: fields[6],
			Thumbnail: fields[7],
		}
		if info.URL == "" {
			continue
		}
		if info.Title == "" {
			info.Title = info.URL
		}
		entries = append(entries, info)
	}
	return entries
}

// entryURL prefers the page URL, then rebuilds YouTube links from the id.
func entryURL(id, flatURL, pageURL string) string {
	switch {
	case pageURL != "":
		return pageURL
	case resolver.IsYouTubeURL(flatURL) && resolver.VideoID(flatURL) != "":
		return resolver.CleanVideoURL(flatURL)
	case flatURL == "" && len(id) == 11:
		return resolver.WatchURL(id)
	default:
		return flatURL
	}
}

// parseDuration reads yt-dlp's seconds value, which may be fractional.
func parseDuration(s string) time.Duration {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// na maps yt-dlp's placeholder for missing fields to "".
func na(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" || s == "None" {
		return ""
	}
	return s
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

// Verify that Resolver implements the MediaResolver interface
var _ ports.MediaResolver = (*Resolver)(nil)
