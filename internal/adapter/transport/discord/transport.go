// Package discord provides the VoiceTransport backed by disgo voice connections.
//
// Each guild holds at most one voice connection; connecting again moves the bot
// by closing the previous connection first. Audio reaches Discord as Opus frames
// pulled from an Ogg stream, transcoded by ffmpeg when the source is not Ogg Opus.
package discord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

// DefaultFFmpegPath is used when Options.FFmpegPath is empty.
const DefaultFFmpegPath = "ffmpeg"

// departureGrace bounds how long a disconnect we started is expected to echo
// back as a voice state without a channel.
const departureGrace = 10 * time.Second

// ConnManager is the part of disgo's voice manager the transport needs.
type ConnManager interface {
	CreateConn(guildID snowflake.ID) voice.Conn
}

// Options configures the transport.
type Options struct {
	FFmpegPath string
}

// Transport implements ports.VoiceTransport over disgo.
//
// Thread-safety: All methods are thread-safe.
type Transport struct {
	logger     *slog.Logger
	manager    ConnManager
	ffmpegPath string

	mu          sync.Mutex
	conns       map[snowflake.ID]*Connection
	departing   map[snowflake.ID]time.Time
	departGrace time.Duration
}

// NewTransport creates a transport that opens connections through manager.
func NewTransport(logger *slog.Logger, manager ConnManager, opts Options) *Transport {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = DefaultFFmpegPath
	}
	return &Transport{
		logger:     logger.With(slog.String("adapter", "discord")),
		manager:    manager,
		ffmpegPath: opts.FFmpegPath,
		conns:       make(map[snowflake.ID]*Connection),
		departing:   make(map[snowflake.ID]time.Time),
		departGrace: departureGrace,
	}
}

// Connect starts opening a voice connection for channel.
func (t *Transport) Connect(ctx context.Context, channel domain.ChannelDescriptor) (ports.VoiceConnection, error) {
	guildID, err := snowflake.Parse(channel.GroupID)
	if err != nil {
		return nil, domain.NewTransportError("connect", channel.GroupID, "invalid guild id", err)
	}
	channelID, err := snowflake.Parse(channel.ChannelID)
	if err != nil {
		return nil, domain.NewTransportError("connect", channel.GroupID, "invalid channel id", err)
	}

	t.mu.Lock()
	previous := t.conns[guildID]
	delete(t.conns, guildID)
	t.mu.Unlock()

	if previous != nil {
		if err := previous.Disconnect(ctx); err != nil {
			t.logger.Warn("failed to close previous voice connection",
				slog.String("guild_id", channel.GroupID),
				slog.String("error", err.Error()))
		}
	}

	openCtx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		transport: t,
		logger:    t.logger.With(slog.String("guild_id", channel.GroupID), slog.String("channel_id", channel.ChannelID)),
		guildID:   guildID,
		channel:   channel,
		conn:      t.manager.CreateConn(guildID),
		cancel:    cancel,
		ready:     make(chan struct{}),
	}

	t.mu.Lock()
	t.conns[guildID] = c
	t.mu.Unlock()

	go c.open(openCtx, channelID)
	return c, nil
}

// CreatePlayer returns an unbound player.
func (t *Transport) CreatePlayer() ports.AudioPlayer {
	return newPlayer(t.logger, t.ffmpegPath)
}

// Close disconnects every open connection.
func (t *Transport) Close(ctx context.Context) {
	t.mu.Lock()
	conns := make([]*Connection, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.Disconnect(ctx)
	}
}

// ExternalLeave reports whether the bot leaving guildID's voice channel was
// caused by something other than this transport, such as a kick or a manual
// disconnect. A departure this transport started is consumed by the first
// call within its grace window.
func (t *Transport) ExternalLeave(guildID snowflake.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline, ok := t.departing[guildID]
	if !ok {
		return true
	}
	delete(t.departing, guildID)
	return !time.Now().Before(deadline)
}

func (t *Transport) markDeparting(guildID snowflake.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.departing[guildID] = time.Now().Add(t.departGrace)
}

func (t *Transport) forget(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[c.guildID] == c {
		delete(t.conns, c.guildID)
	}
}

// Connection is one disgo voice connection.
type Connection struct {
	transport *Transport
	logger    *slog.Logger
	guildID   snowflake.ID
	channel   domain.ChannelDescriptor
	conn      voice.Conn
	cancel    context.CancelFunc

	ready   chan struct{}
	openErr error

	closeOnce sync.Once
}

func (c *Connection) open(ctx context.Context, channelID snowflake.ID) {
	defer close(c.ready)

	c.logger.Debug("opening voice connection")
	if err := c.conn.Open(ctx, channelID, c.channel.SelfMute, c.channel.SelfDeaf); err != nil {
		c.openErr = err
		return
	}
	c.logger.Info("voice connection ready")
}

// WaitReady blocks until the connection is open, has failed, or ctx is done.
func (c *Connection) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		if c.openErr != nil {
			return domain.NewTransportError("connect", c.channel.GroupID, "failed to open voice connection", c.openErr)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe routes player's audio to this connection.
func (c *Connection) Subscribe(player ports.AudioPlayer) error {
	p, ok := player.(*Player)
	if !ok {
		return domain.NewTransportError("subscribe", c.channel.GroupID, "player was not created by this transport", nil)
	}
	return p.attach(c.conn)
}

// Disconnect closes the connection. Later calls are no-ops.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.transport.markDeparting(c.guildID)
		c.conn.Close(ctx)
		c.transport.forget(c)
		c.logger.Info("voice connection closed")
	})
	return nil
}

// ChannelID returns the voice channel the connection targets.
func (c *Connection) ChannelID() string {
	return c.channel.ChannelID
}

var (
	_ ports.VoiceTransport  = (*Transport)(nil)
	_ ports.VoiceConnection = (*Connection)(nil)
)
