package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/dtune/internal/adapter/eventbus"
	mockresolver "github.com/tejashwikalptaru/dtune/internal/adapter/resolver/mock"
	mocktransport "github.com/tejashwikalptaru/dtune/internal/adapter/transport/mock"
	"github.com/tejashwikalptaru/dtune/internal/config"
	"github.com/tejashwikalptaru/dtune/internal/domain"
)

func mockConfig() config.Config {
	return config.Config{
		LogLevel:             "error",
		LogFormat:            "text",
		Transport:            config.TransportMock,
		Resolver:             config.ResolverMock,
		SearchSource:         config.SearchYouTube,
		SearchLimit:          5,
		EventBus:             config.EventBusSync,
		ConnectTimeout:       time.Second,
		PlaybackStartTimeout: time.Second,
		ResolverRate:         1,
		ResolverBurst:        1,
	}
}

func TestNewApplication(t *testing.T) {
	app, err := NewApplication(mockConfig())
	require.NoError(t, err)
	require.NotNil(t, app)

	assert.NotNil(t, app.Controller())
	assert.IsType(t, &eventbus.SyncEventBus{}, app.EventBus())
	assert.IsType(t, &mocktransport.Transport{}, app.Transport())
	assert.IsType(t, &mockresolver.Resolver{}, app.Resolver())

	assert.NoError(t, app.Shutdown())
}

func TestNewApplication_AsyncBus(t *testing.T) {
	cfg := mockConfig()
	cfg.EventBus = config.EventBusAsync

	app, err := NewApplication(cfg)
	require.NoError(t, err)
	assert.IsType(t, &eventbus.AsyncEventBus{}, app.EventBus())
	assert.NoError(t, app.Shutdown())
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := mockConfig()
	cfg.Transport = "carrier-pigeon"

	_, err := NewApplication(cfg)
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestNewApplication_ResolverRejectsBadProxy(t *testing.T) {
	cfg := mockConfig()
	cfg.Resolver = config.ResolverYouTube
	cfg.Proxy = "socks5://localhost:1080"

	_, err := NewApplication(cfg)
	assert.Error(t, err)
}

func TestApplicationLifecycle(t *testing.T) {
	app, err := NewApplication(mockConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.NoError(t, app.Shutdown())
	// Shutdown again should not panic
	assert.NoError(t, app.Shutdown())
}

func TestApplicationPlaysThroughController(t *testing.T) {
	app, err := NewApplication(mockConfig())
	require.NoError(t, err)
	defer app.Shutdown()

	resolver := app.Resolver().(*mockresolver.Resolver)
	resolver.AddMedia(domain.MediaInfo{
		ID:    "abc",
		URL:   "https://www.youtube.com/watch?v=abc",
		Title: "Song",
	})

	channel := domain.ChannelDescriptor{GroupID: "guild-1", ChannelID: "voice-1"}
	result, err := app.Controller().Play(context.Background(), "guild-1", channel, "https://www.youtube.com/watch?v=abc", "user-1")
	require.NoError(t, err)
	assert.True(t, result.Started)

	info, ok := app.Controller().NowPlaying("guild-1")
	require.True(t, ok)
	assert.Equal(t, "Song", info.Title)

	app.onBotLeftVoice("guild-1")
	_, ok = app.Controller().NowPlaying("guild-1")
	assert.False(t, ok)

	// A guild without a session is ignored
	app.onBotLeftVoice("guild-2")
}

func TestVersionInfo(t *testing.T) {
	v := VersionInfo{Version: "1.0.0", GitCommit: "abc123", BuildTime: "today"}
	assert.Equal(t, "dtune 1.0.0 (commit: abc123, built: today)", v.FullString())

	v.GitTag = "v1.0.1"
	assert.Equal(t, "dtune v1.0.1 (commit: abc123, built: today)", v.FullString())
}
