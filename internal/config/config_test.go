package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/dtune/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, TransportDiscord, cfg.Transport)
	assert.Equal(t, ResolverYouTube, cfg.Resolver)
	assert.Equal(t, SearchYouTube, cfg.SearchSource)
	assert.Equal(t, EventBusAsync, cfg.EventBus)
	assert.Equal(t, 10, cfg.SearchLimit)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.PlaybackStartTimeout)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.False(t, cfg.AllowLocalFiles)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"DTUNE_TRANSPORT=mock\nDTUNE_RESOLVER=ytdlp\nDTUNE_CONNECT_TIMEOUT=2s\nDTUNE_ALLOW_LOCAL_FILES=true\n",
	), 0o600))

	// godotenv never overrides variables that are already set
	t.Setenv("DTUNE_TRANSPORT", "")
	t.Setenv("DTUNE_RESOLVER", "")
	t.Setenv("DTUNE_CONNECT_TIMEOUT", "")
	t.Setenv("DTUNE_ALLOW_LOCAL_FILES", "")
	for _, key := range []string{"DTUNE_TRANSPORT", "DTUNE_RESOLVER", "DTUNE_CONNECT_TIMEOUT", "DTUNE_ALLOW_LOCAL_FILES"} {
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportMock, cfg.Transport)
	assert.Equal(t, ResolverYtDlp, cfg.Resolver)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.AllowLocalFiles)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"transport", "DTUNE_TRANSPORT", "carrier-pigeon"},
		{"resolver", "DTUNE_RESOLVER", "soundcloud"},
		{"search source", "DTUNE_SEARCH_SOURCE", "bing"},
		{"log level", "DTUNE_LOG_LEVEL", "loud"},
		{"log format", "DTUNE_LOG_FORMAT", "xml"},
		{"event bus", "DTUNE_EVENT_BUS", "kafka"},
		{"search limit", "DTUNE_SEARCH_LIMIT", "0"},
		{"playback timeout", "DTUNE_PLAYBACK_START_TIMEOUT", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISCORD_TOKEN", "token")
			t.Setenv(tt.key, tt.value)

			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.key, vErr.Field)
		})
	}
}

func TestLoad_TokenRequiredForDiscord(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DTUNE_TRANSPORT", TransportDiscord)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "DISCORD_TOKEN", vErr.Field)

	t.Setenv("DTUNE_TRANSPORT", TransportMock)
	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DTUNE_CONNECT_TIMEOUT", "soon")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
