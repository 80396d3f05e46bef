// Package config loads dtune settings from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/logger"
)

// Adapter choices.
const (
	TransportDiscord = "discord"
	TransportMock    = "mock"

	ResolverYouTube = "youtube"
	ResolverYtDlp   = "ytdlp"
	ResolverMock    = "mock"

	SearchYouTube = "youtube"
	SearchYTMusic = "ytmusic"

	EventBusAsync = "async"
	EventBusSync  = "sync"
)

// Config holds every setting read from the environment.
type Config struct {
	// DiscordToken is the bot token. Required for the discord transport.
	DiscordToken string `env:"DISCORD_TOKEN"`

	LogLevel  string `env:"DTUNE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DTUNE_LOG_FORMAT" envDefault:"pretty"`

	Transport    string `env:"DTUNE_TRANSPORT" envDefault:"discord"`
	Resolver     string `env:"DTUNE_RESOLVER" envDefault:"youtube"`
	SearchSource string `env:"DTUNE_SEARCH_SOURCE" envDefault:"youtube"`
	SearchLimit  int    `env:"DTUNE_SEARCH_LIMIT" envDefault:"10"`
	EventBus     string `env:"DTUNE_EVENT_BUS" envDefault:"async"`

	ConnectTimeout       time.Duration `env:"DTUNE_CONNECT_TIMEOUT" envDefault:"30s"`
	PlaybackStartTimeout time.Duration `env:"DTUNE_PLAYBACK_START_TIMEOUT" envDefault:"5s"`

	// ResolverRate limits resolver lookups (requests per second), with ResolverBurst headroom.
	ResolverRate  float64 `env:"DTUNE_RESOLVER_RATE" envDefault:"2"`
	ResolverBurst int     `env:"DTUNE_RESOLVER_BURST" envDefault:"4"`

	FFmpegPath string `env:"DTUNE_FFMPEG_PATH" envDefault:"ffmpeg"`
	YtDlpPath  string `env:"DTUNE_YTDLP_PATH"`
	Proxy      string `env:"DTUNE_PROXY"`

	AllowLocalFiles bool `env:"DTUNE_ALLOW_LOCAL_FILES" envDefault:"false"`
}

// Load reads files (".env" when none are given) into the process environment
// and parses Config from it. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerations, limits and required settings.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return domain.NewValidationError("DTUNE_LOG_LEVEL", c.LogLevel, err.Error())
	}
	if err := oneOf("DTUNE_LOG_FORMAT", c.LogFormat, logger.FormatText, logger.FormatJSON, logger.FormatPretty); err != nil {
		return err
	}
	if err := oneOf("DTUNE_TRANSPORT", c.Transport, TransportDiscord, TransportMock); err != nil {
		return err
	}
	if err := oneOf("DTUNE_RESOLVER", c.Resolver, ResolverYouTube, ResolverYtDlp, ResolverMock); err != nil {
		return err
	}
	if err := oneOf("DTUNE_SEARCH_SOURCE", c.SearchSource, SearchYouTube, SearchYTMusic); err != nil {
		return err
	}
	if err := oneOf("DTUNE_EVENT_BUS", c.EventBus, EventBusAsync, EventBusSync); err != nil {
		return err
	}

	if c.Transport == TransportDiscord && c.DiscordToken == "" {
		return domain.NewValidationError("DISCORD_TOKEN", "", "required for the discord transport")
	}
	if c.SearchLimit <= 0 {
		return domain.NewValidationError("DTUNE_SEARCH_LIMIT", c.SearchLimit, "must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return domain.NewValidationError("DTUNE_CONNECT_TIMEOUT", c.ConnectTimeout, "must be positive")
	}
	if c.PlaybackStartTimeout <= 0 {
		return domain.NewValidationError("DTUNE_PLAYBACK_START_TIMEOUT", c.PlaybackStartTimeout, "must be positive")
	}
	if c.ResolverRate <= 0 || c.ResolverBurst <= 0 {
		return domain.NewValidationError("DTUNE_RESOLVER_RATE", c.ResolverRate, "rate and burst must be positive")
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return domain.NewValidationError(field, value, fmt.Sprintf("must be one of %v", allowed))
}
