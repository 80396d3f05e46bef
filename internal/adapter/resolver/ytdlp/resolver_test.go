package ytdlp

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/logger"
)

func TestParseEntries(t *testing.T) {
	out := strings.Join([]string{
		"dQw4w9WgXcQ\tNA\thttps://www.youtube.com/watch?v=dQw4w9WgXcQ\tNever Gonna Give You Up\tRick Astley\t213.0\thttps://www.youtube.com/channel/UC1\thttps://i.ytimg.com/1.jpg",
		"abcdefghijk\thttps://www.youtube.com/watch?v=abcdefghijk&t=30\tNA\tFlat entry\tNA\tNA\tNA\tNA",
		"too\tfew\tfields",
		"",
		"track-9\thttps://cdn.example/track-9.mp3\tNA\tNA\tSomeone\t61.5\tNA\tNA",
	}, "\n")

	entries := parseEntries(out)
	require.Len(t, entries, 3)

	assert.Equal(t, domain.MediaInfo{
		ID:        "dQw4w9WgXcQ",
		URL:       "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Title:     "Never Gonna Give You Up",
		Author:    "Rick Astley",
		Duration:  213 * time.Second,
		AuthorURL: "https://www.youtube.com/channel/UC1",
		Thumbnail: "https://i.ytimg.com/1.jpg",
	}, entries[0])

	assert.Equal(t, "https://www.youtube.com/watch?v=abcdefghijk", entries[1].URL, "flat links are cleaned")
	assert.Empty(t, entries[1].Author)
	assert.Zero(t, entries[1].Duration)

	assert.Equal(t, "https://cdn.example/track-9.mp3", entries[2].URL)
	assert.Equal(t, entries[2].URL, entries[2].Title, "missing titles fall back to the link")
	assert.Equal(t, 61500*time.Millisecond, entries[2].Duration)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"213", 213 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{"", 0},
		{"-1", 0},
		{"live", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDuration(tt.in))
		})
	}
}

func TestSearchTarget(t *testing.T) {
	assert.Equal(t, "ytsearch5:lofi beats", searchTarget(SourceYouTube, "lofi beats", 5))
	assert.Equal(t, "ytmsearch3:lofi beats", searchTarget(SourceYTMusic, "lofi beats", 3))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=x", normalize("https://music.youtube.com/watch?v=x"))
	assert.Equal(t, "https://example.com/a", normalize("https://example.com/a"))
}

func TestResolver_Classify(t *testing.T) {
	r, err := NewResolver(logger.NewTestLogger(), Config{})
	require.NoError(t, err)

	assert.Equal(t, domain.QuerySearch, r.Classify("some song"))
	assert.Equal(t, domain.QueryPlaylist, r.Classify("https://www.youtube.com/playlist?list=PL1"))
	assert.Equal(t, domain.QueryVideo, r.Classify("https://soundcloud.com/artist/track"))
}

func TestNewResolver_RejectsUnknownSource(t *testing.T) {
	_, err := NewResolver(logger.NewTestLogger(), Config{SearchSource: "bing"})
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

// fakeYtdlp writes a shell script standing in for the yt-dlp binary.
func fakeYtdlp(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestResolver_FetchSingleMediaInfo(t *testing.T) {
	exe := fakeYtdlp(t, `printf 'id1\tNA\thttps://media.example/id1\tSong\tArtist\t42\tNA\tNA\n'`)
	r, err := NewResolver(logger.NewTestLogger(), Config{Executable: exe})
	require.NoError(t, err)

	info, err := r.FetchSingleMediaInfo(context.Background(), "https://media.example/id1")
	require.NoError(t, err)
	assert.Equal(t, "Song", info.Title)
	assert.Equal(t, 42*time.Second, info.Duration)
}

func TestResolver_FetchSingleMediaInfoFailure(t *testing.T) {
	exe := fakeYtdlp(t, "echo 'ERROR: Unsupported URL' >&2\nexit 1")
	r, err := NewResolver(logger.NewTestLogger(), Config{Executable: exe})
	require.NoError(t, err)

	_, err = r.FetchSingleMediaInfo(context.Background(), "https://media.example/nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported URL")
}

func TestResolver_OpenStream(t *testing.T) {
	exe := fakeYtdlp(t, "printf 'audio-bytes'")
	r, err := NewResolver(logger.NewTestLogger(), Config{Executable: exe})
	require.NoError(t, err)

	res, err := r.OpenStream(context.Background(), "https://media.example/id1")
	require.NoError(t, err)
	assert.Equal(t, domain.InputArbitrary, res.InputType)

	data, err := io.ReadAll(res.Stream)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
	assert.NoError(t, res.Close())
}

func TestResolver_OpenStreamNoOutput(t *testing.T) {
	exe := fakeYtdlp(t, "echo 'ERROR: Video unavailable' >&2\nexit 1")
	r, err := NewResolver(logger.NewTestLogger(), Config{Executable: exe})
	require.NoError(t, err)

	_, err = r.OpenStream(context.Background(), "https://media.example/gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Video unavailable")
}

func TestResolver_OpenStreamCloseKillsProcess(t *testing.T) {
	exe := fakeYtdlp(t, "printf 'x'\nexec sleep 30")
	r, err := NewResolver(logger.NewTestLogger(), Config{Executable: exe})
	require.NoError(t, err)

	res, err := r.OpenStream(context.Background(), "https://media.example/long")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- res.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop the process")
	}
}
