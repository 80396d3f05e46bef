// Package mock provides a mock implementation of the VoiceTransport interface.
// This is used for testing sessions without a voice gateway.
package mock

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

// Transport is a mock implementation of the VoiceTransport interface.
// It simulates connections and players in memory without sending any audio.
//
// Thread-safety: This implementation is thread-safe.
type Transport struct {
	// Dependencies
	logger *slog.Logger

	mu          sync.Mutex
	connections []*Connection
	players     []*Player

	// Behavior configuration (for testing error scenarios)
	failConnect  bool
	holdReady    bool
	holdPlayback bool
	failPlay     bool
}

// NewTransport creates a new mock transport.
func NewTransport() *Transport {
	return &Transport{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for this transport.
func (t *Transport) SetLogger(logger *slog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger = logger
}

// SetFailConnect makes Connect fail (for testing).
func (t *Transport) SetFailConnect(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failConnect = fail
}

// SetHoldReady keeps new connections from ever becoming ready (for timeout tests).
// Held connections can be released with Connection.MarkReady.
func (t *Transport) SetHoldReady(hold bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holdReady = hold
}

// SetHoldPlayback keeps players in Buffering after Play (for timeout tests).
// Held players can be released with Player.StartPlaying.
func (t *Transport) SetHoldPlayback(hold bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holdPlayback = hold
}

// SetFailPlay makes Play fail (for testing).
func (t *Transport) SetFailPlay(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failPlay = fail
}

// Connect creates a connection that is ready immediately unless held.
func (t *Transport) Connect(ctx context.Context, channel domain.ChannelDescriptor) (ports.VoiceConnection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failConnect {
		return nil, domain.NewTransportError("connect", channel.GroupID, "mock connect failed", nil)
	}

	conn := &Connection{
		channel: channel,
		ready:   make(chan struct{}),
	}
	if !t.holdReady {
		conn.MarkReady()
	}
	t.connections = append(t.connections, conn)

	t.logger.Debug("mock connect",
		slog.String("group_id", channel.GroupID),
		slog.String("channel_id", channel.ChannelID))
	return conn, nil
}

// CreatePlayer creates a new idle player.
func (t *Transport) CreatePlayer() ports.AudioPlayer {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &Player{
		transport: t,
		listeners: make(map[int]func(ports.PlayerStateChange)),
	}
	t.players = append(t.players, p)
	return p
}

// Connections returns every connection created so far, oldest first.
func (t *Transport) Connections() []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Connection, len(t.connections))
	copy(out, t.connections)
	return out
}

// Players returns every player created so far, oldest first.
func (t *Transport) Players() []*Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Player, len(t.players))
	copy(out, t.players)
	return out
}

// LastPlayer returns the most recently created player, or nil.
func (t *Transport) LastPlayer() *Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.players) == 0 {
		return nil
	}
	return t.players[len(t.players)-1]
}

func (t *Transport) behavior() (holdPlayback, failPlay bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.holdPlayback, t.failPlay
}

// Connection is a mock voice connection.
type Connection struct {
	channel   domain.ChannelDescriptor
	ready     chan struct{}
	readyOnce sync.Once

	mu           sync.Mutex
	subscribed   ports.AudioPlayer
	disconnected bool
}

// MarkReady signals readiness. Calling it more than once is a no-op.
func (c *Connection) MarkReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// WaitReady blocks until MarkReady or ctx is done.
func (c *Connection) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe records the player routed to this connection.
func (c *Connection) Subscribe(player ports.AudioPlayer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disconnected {
		return domain.NewTransportError("subscribe", c.channel.GroupID, "connection is closed", nil)
	}
	c.subscribed = player
	return nil
}

// Disconnect marks the connection closed.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.subscribed = nil
	return nil
}

// ChannelID returns the target channel.
func (c *Connection) ChannelID() string {
	return c.channel.ChannelID
}

// Disconnected reports whether Disconnect was called.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// Subscribed returns the subscribed player, or nil.
func (c *Connection) Subscribed() ports.AudioPlayer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// Player is a mock audio player. Transitions are reported synchronously to listeners.
type Player struct {
	transport *Transport

	mu           sync.Mutex
	status       domain.PlayerStatus
	resource     *domain.Resource
	played       []*domain.Resource
	listeners    map[int]func(ports.PlayerStateChange)
	nextListener int
	closed       bool
}

// Play binds the resource and reports Buffering then Playing (unless playback is held).
func (p *Player) Play(res *domain.Resource) error {
	holdPlayback, failPlay := p.transport.behavior()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.NewTransportError("play", "", "player is closed", nil)
	}
	if failPlay {
		p.mu.Unlock()
		return domain.NewTransportError("play", "", "mock play failed", nil)
	}
	replaced := p.resource
	p.resource = res
	p.played = append(p.played, res)
	p.mu.Unlock()

	if replaced != nil && replaced != res {
		_ = replaced.Close()
	}
	p.transition(domain.PlayerBuffering, res)
	if !holdPlayback {
		p.transition(domain.PlayerPlaying, res)
	}
	return nil
}

// StartPlaying reports Playing for a held resource.
func (p *Player) StartPlaying() bool {
	p.mu.Lock()
	res := p.resource
	ok := res != nil && p.status == domain.PlayerBuffering
	p.mu.Unlock()

	if ok {
		p.transition(domain.PlayerPlaying, res)
	}
	return ok
}

// Stop unbinds the resource, closes it and reports Idle.
func (p *Player) Stop() bool {
	p.mu.Lock()
	res := p.resource
	if res == nil || p.status == domain.PlayerIdle {
		p.mu.Unlock()
		return false
	}
	p.resource = nil
	p.mu.Unlock()

	_ = res.Close()
	p.transition(domain.PlayerIdle, res)
	return true
}

// Finish simulates the natural end of the bound resource.
func (p *Player) Finish() bool {
	return p.Stop()
}

// Pause pauses a playing resource.
func (p *Player) Pause() bool {
	p.mu.Lock()
	res := p.resource
	ok := p.status == domain.PlayerPlaying
	p.mu.Unlock()

	if ok {
		p.transition(domain.PlayerPaused, res)
	}
	return ok
}

// Resume resumes a paused resource.
func (p *Player) Resume() bool {
	p.mu.Lock()
	res := p.resource
	ok := p.status == domain.PlayerPaused
	p.mu.Unlock()

	if ok {
		p.transition(domain.PlayerPlaying, res)
	}
	return ok
}

// Status returns the current status.
func (p *Player) Status() domain.PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Current returns the bound resource, or nil.
func (p *Player) Current() *domain.Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resource
}

// Played returns every resource passed to Play, oldest first.
func (p *Player) Played() []*domain.Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.Resource, len(p.played))
	copy(out, p.played)
	return out
}

// OnStateChange registers a listener.
func (p *Player) OnStateChange(listener func(ports.PlayerStateChange)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextListener
	p.nextListener++
	p.listeners[id] = listener

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Close stops playback and drops all listeners.
func (p *Player) Close() error {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.listeners = make(map[int]func(ports.PlayerStateChange))
	return nil
}

// Closed reports whether Close was called.
func (p *Player) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Emit reports change to the listeners without touching the player state.
// Tests use it to replay late or duplicate signals.
func (p *Player) Emit(change ports.PlayerStateChange) {
	p.mu.Lock()
	listeners := make([]func(ports.PlayerStateChange), 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}

func (p *Player) transition(status domain.PlayerStatus, res *domain.Resource) {
	p.mu.Lock()
	change := ports.PlayerStateChange{Old: p.status, New: status, Resource: res}
	p.status = status
	listeners := make([]func(ports.PlayerStateChange), 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}

// Verify interface compliance
var (
	_ ports.VoiceTransport  = (*Transport)(nil)
	_ ports.VoiceConnection = (*Connection)(nil)
	_ ports.AudioPlayer     = (*Player)(nil)
)
