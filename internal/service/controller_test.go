package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/logger"
	"github.com/tejashwikalptaru/dtune/internal/track"
)

const (
	videoURL    = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	listURL     = "https://www.youtube.com/playlist?list=PLcontroller"
	testChannel = "voice-1"
)

func newTestController(t *testing.T) (*Controller, *testEnv) {
	t.Helper()
	env := newTestEnv(t)

	env.resolver.AddMedia(domain.MediaInfo{
		ID:       "dQw4w9WgXcQ",
		URL:      videoURL,
		Title:    "Never Gonna Give You Up",
		Duration: 213 * time.Second,
	})
	env.resolver.AddPlaylist(listURL, []domain.MediaInfo{
		{ID: "p1", URL: "https://media.example/p1", Title: "p1"},
		{ID: "p2", URL: "https://media.example/p2", Title: "p2"},
	})

	factory := track.NewFactory(logger.NewTestLogger(), env.resolver)
	return NewController(logger.NewTestLogger(), env.registry, factory), env
}

func channel() domain.ChannelDescriptor {
	return domain.ChannelDescriptor{GroupID: testGroup, ChannelID: testChannel, SelfDeaf: true}
}

func TestController_MissingSession(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Skip(testGroup)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = c.Pause(testGroup)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = c.Resume(testGroup)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, c.Shuffle(testGroup), domain.ErrSessionNotFound)
	assert.ErrorIs(t, c.SetRepeatMode(testGroup, domain.RepeatAll), domain.ErrSessionNotFound)
	_, err = c.Queue(testGroup, 0, -1, true)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, c.Stop(context.Background(), testGroup), domain.ErrSessionNotFound)

	_, ok := c.NowPlaying(testGroup)
	assert.False(t, ok)
}

func TestController_AddTracksRequiresSession(t *testing.T) {
	c, env := newTestController(t)

	_, err := c.AddTracks(context.Background(), testGroup, []track.Track{env.newTrack("A")}, AddOptions{})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = c.AddTracks(context.Background(), testGroup, nil, AddOptions{Create: true})
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestController_AddTracksStartsIdleSession(t *testing.T) {
	c, env := newTestController(t)

	result, err := c.AddTracks(context.Background(), testGroup,
		[]track.Track{env.newTrack("A"), env.newTrack("B")}, AddOptions{Create: true})
	require.NoError(t, err)

	assert.True(t, result.Started)
	assert.True(t, result.Playlist)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 2, result.QueueLen)
	assert.Equal(t, "A", result.First.Title)
	assert.Equal(t, []string{"A"}, env.events.startedTitles())

	// A playing session is not restarted
	result, err = c.AddTracks(context.Background(), testGroup, []track.Track{env.newTrack("C")}, AddOptions{})
	require.NoError(t, err)
	assert.False(t, result.Started)
	assert.False(t, result.Playlist)
	assert.Equal(t, []string{"A"}, env.events.startedTitles())
}

func TestController_ConcurrentAddTracksStartOnce(t *testing.T) {
	c, env := newTestController(t)
	env.resolver.SetStreamDelay(30 * time.Millisecond)

	var wg sync.WaitGroup
	var startedCount atomic.Int32
	for _, name := range []string{"A", "B"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.AddTracks(context.Background(), testGroup,
				[]track.Track{env.newTrack(name)}, AddOptions{Create: true})
			assert.NoError(t, err)
			if result.Started {
				startedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), startedCount.Load())
	assert.Len(t, env.events.startedTitles(), 1)
	assert.Len(t, env.player(t).Played(), 1)

	s, ok := env.registry.Get(testGroup)
	require.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestController_AddTracksDontStart(t *testing.T) {
	c, env := newTestController(t)

	result, err := c.AddTracks(context.Background(), testGroup,
		[]track.Track{env.newTrack("A")}, AddOptions{Create: true, DontStart: true})
	require.NoError(t, err)
	assert.False(t, result.Started)
	assert.Zero(t, env.events.count(domain.EventTrackStarted))
}

func TestController_AddTracksToFrontKeepsOrder(t *testing.T) {
	c, env := newTestController(t)

	_, err := c.AddTracks(context.Background(), testGroup,
		[]track.Track{env.newTrack("A"), env.newTrack("B")}, AddOptions{Create: true})
	require.NoError(t, err)

	_, err = c.AddTracks(context.Background(), testGroup,
		[]track.Track{env.newTrack("X"), env.newTrack("Y")}, AddOptions{ToFront: true})
	require.NoError(t, err)

	view, err := c.Queue(testGroup, 0, -1, true)
	require.NoError(t, err)
	var titles []string
	for _, info := range view.Infos {
		titles = append(titles, info.Title)
	}
	assert.Equal(t, []string{"A", "X", "Y", "B"}, titles)
}

func TestController_PlayVideo(t *testing.T) {
	c, env := newTestController(t)

	result, err := c.Play(context.Background(), testGroup, channel(), videoURL, "user-1")
	require.NoError(t, err)
	assert.True(t, result.Started)
	assert.False(t, result.Playlist)
	assert.Equal(t, "Never Gonna Give You Up", result.First.Title)
	assert.Equal(t, "user-1", result.First.RequesterID)

	s, ok := env.registry.Get(testGroup)
	require.True(t, ok)
	assert.Equal(t, testChannel, s.ChannelID())
	assert.Equal(t, domain.StatePlaying, s.State())

	info, ok := c.NowPlaying(testGroup)
	require.True(t, ok)
	assert.Equal(t, "Never Gonna Give You Up", info.Title)
}

func TestController_PlayPlaylist(t *testing.T) {
	c, env := newTestController(t)

	result, err := c.Play(context.Background(), testGroup, channel(), listURL, "")
	require.NoError(t, err)
	assert.True(t, result.Playlist)
	assert.Equal(t, 2, result.QueueLen)
	assert.Equal(t, []string{"p1"}, env.events.startedTitles())
}

func TestController_PlaySingleEntryPlaylist(t *testing.T) {
	c, env := newTestController(t)
	single := "https://www.youtube.com/playlist?list=PLsingle"
	env.resolver.AddPlaylist(single, []domain.MediaInfo{
		{ID: "s1", URL: "https://media.example/s1", Title: "s1"},
	})

	result, err := c.Play(context.Background(), testGroup, channel(), single, "")
	require.NoError(t, err)
	assert.True(t, result.Playlist)
	assert.Equal(t, 1, result.Added)
}

func TestController_PlayReusesConnection(t *testing.T) {
	c, env := newTestController(t)

	_, err := c.Play(context.Background(), testGroup, channel(), videoURL, "")
	require.NoError(t, err)
	_, err = c.Play(context.Background(), testGroup, channel(), listURL, "")
	require.NoError(t, err)

	assert.Len(t, env.transport.Connections(), 1)
}

func TestController_PlayJoinFailureDestroysNewSession(t *testing.T) {
	c, env := newTestController(t)
	env.transport.SetFailConnect(true)

	_, err := c.Play(context.Background(), testGroup, channel(), videoURL, "")
	var tErr *domain.TransportError
	assert.ErrorAs(t, err, &tErr)

	_, ok := env.registry.Get(testGroup)
	assert.False(t, ok)
}

func TestController_PlayResolutionFailure(t *testing.T) {
	c, env := newTestController(t)
	env.resolver.SetFailInfo(true)

	_, err := c.Play(context.Background(), testGroup, channel(), videoURL, "")
	assert.ErrorIs(t, err, domain.ErrResolutionFailed)
	assert.Zero(t, env.registry.Len(), "nothing is created for an unresolvable query")
}

func TestController_JoinVoiceChannel(t *testing.T) {
	c, env := newTestController(t)

	_, err := c.JoinVoiceChannel(context.Background(), testGroup, channel(), false, false)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	s, err := c.JoinVoiceChannel(context.Background(), testGroup, channel(), true, false)
	require.NoError(t, err)
	assert.True(t, s.Connected())

	// Already connected: left alone unless forced
	_, err = c.JoinVoiceChannel(context.Background(), testGroup, domain.ChannelDescriptor{ChannelID: "other"}, false, false)
	require.NoError(t, err)
	assert.Equal(t, testChannel, s.ChannelID())

	_, err = c.JoinVoiceChannel(context.Background(), testGroup, domain.ChannelDescriptor{ChannelID: "other"}, false, true)
	require.NoError(t, err)
	assert.Equal(t, "other", s.ChannelID())
	assert.Len(t, env.transport.Connections(), 2)
}

func TestController_Controls(t *testing.T) {
	c, env := newTestController(t)
	_, err := c.Play(context.Background(), testGroup, channel(), listURL, "")
	require.NoError(t, err)

	paused, err := c.Pause(testGroup)
	require.NoError(t, err)
	assert.True(t, paused)

	resumed, err := c.Resume(testGroup)
	require.NoError(t, err)
	assert.True(t, resumed)

	require.NoError(t, c.SetRepeatMode(testGroup, domain.RepeatAll))
	require.NoError(t, c.Shuffle(testGroup))

	skipped, err := c.Skip(testGroup)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Eventually(t, func() bool {
		return len(env.events.startedTitles()) == 2
	}, waitFor, pollEvery)

	require.NoError(t, c.Stop(context.Background(), testGroup))
	_, ok := env.registry.Get(testGroup)
	assert.False(t, ok)
}

func TestController_Search(t *testing.T) {
	c, env := newTestController(t)
	env.resolver.AddSearchResults("rick", []domain.MediaInfo{{URL: videoURL, Title: "Never Gonna Give You Up"}})

	results, err := c.Search(context.Background(), "rick")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, videoURL, results[0].URL)
}
