package track

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/dtune/internal/adapter/resolver/mock"
	"github.com/tejashwikalptaru/dtune/internal/domain"
)

const songURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func songInfo() domain.MediaInfo {
	return domain.MediaInfo{
		ID:              "dQw4w9WgXcQ",
		URL:             songURL,
		Title:           "Never Gonna Give You Up",
		Duration:        213 * time.Second,
		Author:          "Rick Astley",
		AuthorURL:       "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw",
		AuthorThumbnail: "https://yt3.example/avatar.jpg",
		Thumbnail:       "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
	}
}

func newTestResolver() *mock.Resolver {
	r := mock.NewResolver()
	r.AddMedia(songInfo())
	return r
}

func TestNewGeneric(t *testing.T) {
	g := NewGeneric("https://radio.example.com/live.mp3", "user-1")

	assert.NotEmpty(t, g.ID())
	assert.Equal(t, domain.KindGeneric, g.Kind())
	assert.Equal(t, "https://radio.example.com/live.mp3", g.Title())
	assert.Equal(t, "user-1", g.RequesterID())

	res, err := g.ProduceResource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://radio.example.com/live.mp3", res.SourceURL)
	assert.Nil(t, res.Stream)
	assert.Equal(t, domain.InputArbitrary, res.InputType)
}

func TestNewGeneric_UniqueIDs(t *testing.T) {
	a := NewGeneric("https://example.com/a.mp3", "")
	b := NewGeneric("https://example.com/a.mp3", "")
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestNewLocalFile_FallsBackToFileName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not really audio"), 0o600))

	g, err := NewLocalFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, "my song", g.Title())
	assert.Equal(t, path, g.SourceURL())
}

func TestNewLocalFile_Missing(t *testing.T) {
	_, err := NewLocalFile(filepath.Join(t.TempDir(), "missing.mp3"), "")
	assert.ErrorIs(t, err, domain.ErrResolutionFailed)
}

func TestNewSingleMedia_Describe(t *testing.T) {
	r := newTestResolver()

	m, err := NewSingleMedia(context.Background(), r, songURL, "user-1")
	require.NoError(t, err)

	info := m.Describe()
	assert.Equal(t, "dQw4w9WgXcQ", info.ID)
	assert.Equal(t, "Never Gonna Give You Up", info.Title)
	assert.NotEmpty(t, info.Title)
	assert.Equal(t, 213, info.DurationSeconds())
	assert.GreaterOrEqual(t, info.DurationSeconds(), 0)
	assert.Equal(t, "3:33", info.DurationFormatted)
	assert.Equal(t, "Rick Astley", info.Author)
	assert.Equal(t, domain.KindSingleMedia, info.Kind)
	assert.Equal(t, 0, info.PlaylistPosition)
	assert.Equal(t, "user-1", info.RequesterID)
	assert.Equal(t, 1, r.InfoCalls(songURL))
}

func TestNewSingleMedia_ResolutionFailure(t *testing.T) {
	r := newTestResolver()
	r.SetFailInfo(true)

	_, err := NewSingleMedia(context.Background(), r, songURL, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResolutionFailed)
	assert.ErrorIs(t, err, mock.ErrMock)

	var resErr *domain.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "fetch_info", resErr.Op)
}

func TestPlaylistMember_LightEntry(t *testing.T) {
	r := newTestResolver()
	entry := domain.MediaInfo{ID: "abc", URL: "https://www.youtube.com/watch?v=abcdefghijk", Partial: true}

	m := NewPlaylistMember(r, entry, 3, "")

	info := m.Describe()
	assert.Equal(t, domain.KindPlaylistMember, info.Kind)
	assert.Equal(t, 3, info.PlaylistPosition)
	assert.Equal(t, entry.URL, info.Title, "light entries fall back to the url")
	assert.True(t, m.Partial())
	assert.Equal(t, 0, r.InfoCalls(entry.URL), "playlist members never fetch metadata")
}

func TestPreload_ReusedByProduceResource(t *testing.T) {
	r := newTestResolver()
	m, err := NewSingleMedia(context.Background(), r, songURL, "")
	require.NoError(t, err)

	assert.False(t, m.Preloaded())
	require.NoError(t, m.Preload(context.Background()))
	assert.True(t, m.Preloaded())

	// A second preload is a no-op
	require.NoError(t, m.Preload(context.Background()))
	assert.Equal(t, 1, r.StreamCalls(songURL))

	res, err := m.ProduceResource(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res.Stream)
	assert.Equal(t, 1, r.StreamCalls(songURL), "preloaded resource must be reused")

	// Ownership moved to the caller; a replay resolves again
	assert.False(t, m.Preloaded())
	_, err = m.ProduceResource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, r.StreamCalls(songURL))
}

func TestProduceResource_ResolvesWhenNotPreloaded(t *testing.T) {
	r := newTestResolver()
	m, err := NewSingleMedia(context.Background(), r, songURL, "")
	require.NoError(t, err)

	res, err := m.ProduceResource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, songURL, res.SourceURL)
	assert.Equal(t, 1, r.StreamCalls(songURL))
}

func TestPreload_Failure(t *testing.T) {
	r := newTestResolver()
	m, err := NewSingleMedia(context.Background(), r, songURL, "")
	require.NoError(t, err)

	r.SetFailStream(true)
	err = m.Preload(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrResolutionFailed))
	assert.False(t, m.Preloaded())
}

func TestRelease_ClosesCachedStream(t *testing.T) {
	r := newTestResolver()
	m, err := NewSingleMedia(context.Background(), r, songURL, "")
	require.NoError(t, err)

	require.NoError(t, m.Preload(context.Background()))

	m.mu.Lock()
	stream := m.resource.Stream.(*mock.Stream)
	m.mu.Unlock()

	m.Release()
	assert.True(t, stream.Closed())
	assert.False(t, m.Preloaded())

	// Releasing an empty cache is harmless
	m.Release()
}

func TestConcurrentPreloads_KeepOneResource(t *testing.T) {
	r := newTestResolver()
	r.SetStreamDelay(10 * time.Millisecond)
	m, err := NewSingleMedia(context.Background(), r, songURL, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Preload(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, m.Preloaded())
	res, err := m.ProduceResource(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Stream.(*mock.Stream).Closed(), "the kept resource must stay open")
}

func TestPreload_HonorsContext(t *testing.T) {
	r := newTestResolver()
	r.SetStreamDelay(time.Second)
	m, err := NewSingleMedia(context.Background(), r, songURL, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = m.Preload(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPreload_DiscardedWhenProducedMeanwhile(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var calls int
	var mu sync.Mutex
	var streams []*mock.Stream

	b := &base{sourceURL: songURL}
	b.resolve = func(ctx context.Context) (*domain.Resource, error) {
		mu.Lock()
		calls++
		first := calls == 1
		stream := &mock.Stream{}
		streams = append(streams, stream)
		mu.Unlock()

		if first {
			close(entered)
			<-unblock
		}
		return &domain.Resource{SourceURL: songURL, Stream: stream}, nil
	}

	done := make(chan error, 1)
	go func() { done <- b.Preload(context.Background()) }()
	<-entered

	// The play path resolves its own stream while the preload is in flight
	res, err := b.ProduceResource(context.Background())
	require.NoError(t, err)

	close(unblock)
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, streams, 2)
	assert.Same(t, streams[1], res.Stream)
	assert.False(t, streams[1].Closed())
	assert.True(t, streams[0].Closed(), "the stale preload must not stay cached")
	assert.False(t, b.Preloaded())
}

func TestPreload_DiscardedAfterRelease(t *testing.T) {
	unblock := make(chan struct{})
	stream := &mock.Stream{}

	b := &base{sourceURL: songURL}
	entered := make(chan struct{})
	b.resolve = func(ctx context.Context) (*domain.Resource, error) {
		close(entered)
		<-unblock
		return &domain.Resource{SourceURL: songURL, Stream: stream}, nil
	}

	done := make(chan error, 1)
	go func() { done <- b.Preload(context.Background()) }()
	<-entered

	b.Release()
	close(unblock)
	require.NoError(t, <-done)

	assert.True(t, stream.Closed())
	assert.False(t, b.Preloaded())
}
