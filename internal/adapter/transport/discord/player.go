package discord

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/disgo/voice"

	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/ports"
)

const speakingTimeout = 5 * time.Second

// Player feeds one resource at a time to a voice connection.
//
// The connection pulls frames through frameProvider every 20ms. The first frame
// of a resource reports Playing; the end of its stream reports Idle.
//
// Thread-safety: All methods are thread-safe.
type Player struct {
	logger     *slog.Logger
	ffmpegPath string

	mu           sync.Mutex
	status       domain.PlayerStatus
	current      *pipeline
	conn         voice.Conn
	listeners    map[int]func(ports.PlayerStateChange)
	nextListener int
	closed       bool

	// cleanup tracks pipelines being torn down
	cleanup sync.WaitGroup
}

func newPlayer(logger *slog.Logger, ffmpegPath string) *Player {
	return &Player{
		logger:     logger,
		ffmpegPath: ffmpegPath,
		listeners:  make(map[int]func(ports.PlayerStateChange)),
	}
}

// Play binds res, replacing whatever was bound without an Idle report.
func (p *Player) Play(res *domain.Resource) error {
	if res == nil {
		return domain.NewTransportError("play", "", "nil resource", nil)
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return domain.NewTransportError("play", "", "player is closed", nil)
	}

	pl, err := startPipeline(p.logger, p.ffmpegPath, res)
	if err != nil {
		return domain.NewTransportError("play", "", "failed to start audio pipeline", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.release(pl)
		return domain.NewTransportError("play", "", "player is closed", nil)
	}
	replaced := p.current
	p.current = pl
	change, listeners := p.setStatusLocked(domain.PlayerBuffering, res)
	p.mu.Unlock()

	if replaced != nil {
		p.release(replaced)
	}
	notify(listeners, change)
	return nil
}

// Stop unbinds the current resource and reports Idle for it.
func (p *Player) Stop() bool {
	p.mu.Lock()
	pl := p.current
	if pl == nil {
		p.mu.Unlock()
		return false
	}
	p.current = nil
	change, listeners := p.setStatusLocked(domain.PlayerIdle, pl.res)
	p.mu.Unlock()

	p.release(pl)
	p.setSpeaking(false)
	notify(listeners, change)
	return true
}

// Pause pauses a playing resource.
func (p *Player) Pause() bool {
	return p.toggle(domain.PlayerPlaying, domain.PlayerPaused)
}

// Resume resumes a paused resource.
func (p *Player) Resume() bool {
	return p.toggle(domain.PlayerPaused, domain.PlayerPlaying)
}

func (p *Player) toggle(from, to domain.PlayerStatus) bool {
	p.mu.Lock()
	if p.current == nil || p.status != from {
		p.mu.Unlock()
		return false
	}
	change, listeners := p.setStatusLocked(to, p.current.res)
	p.mu.Unlock()

	p.setSpeaking(to == domain.PlayerPlaying)
	notify(listeners, change)
	return true
}

// Status returns the current player status.
func (p *Player) Status() domain.PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// OnStateChange registers a listener and returns its removal func.
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

// Close stops playback, detaches from the connection and waits for teardown.
func (p *Player) Close() error {
	p.Stop()

	p.mu.Lock()
	p.closed = true
	p.listeners = make(map[int]func(ports.PlayerStateChange))
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn != nil {
		conn.SetOpusFrameProvider(nil)
	}
	p.cleanup.Wait()
	return nil
}

// attach routes the player's frames to conn.
func (p *Player) attach(conn voice.Conn) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.NewTransportError("subscribe", "", "player is closed", nil)
	}
	p.conn = conn
	playing := p.status == domain.PlayerPlaying
	p.mu.Unlock()

	conn.SetOpusFrameProvider(&frameProvider{player: p})
	if playing {
		p.setSpeaking(true)
	}
	return nil
}

// nextFrame returns the next packet of the bound resource, or nil when there
// is nothing to send.
func (p *Player) nextFrame() []byte {
	p.mu.Lock()
	pl, status := p.current, p.status
	p.mu.Unlock()

	if pl == nil || status == domain.PlayerPaused || status == domain.PlayerIdle {
		return nil
	}

	packet, err := pl.packets.NextPacket()
	if err != nil {
		p.finish(pl, err)
		return nil
	}
	if status == domain.PlayerBuffering {
		p.markPlaying(pl)
	}
	return packet
}

func (p *Player) markPlaying(pl *pipeline) {
	p.mu.Lock()
	if p.current != pl || p.status != domain.PlayerBuffering {
		p.mu.Unlock()
		return
	}
	change, listeners := p.setStatusLocked(domain.PlayerPlaying, pl.res)
	p.mu.Unlock()

	p.setSpeaking(true)
	notify(listeners, change)
}

// finish reports Idle when the bound pipeline ends. Pipelines that were
// already replaced or stopped end silently.
func (p *Player) finish(pl *pipeline, err error) {
	p.mu.Lock()
	if p.current != pl {
		p.mu.Unlock()
		return
	}
	p.current = nil
	change, listeners := p.setStatusLocked(domain.PlayerIdle, pl.res)
	p.mu.Unlock()

	if !errors.Is(err, io.EOF) {
		p.logger.Warn("audio stream ended with error",
			slog.String("source", pl.res.SourceURL),
			slog.String("error", err.Error()))
	}

	p.release(pl)
	p.setSpeaking(false)
	notify(listeners, change)
}

// release tears pl down in the background.
func (p *Player) release(pl *pipeline) {
	p.cleanup.Add(1)
	go func() {
		defer p.cleanup.Done()
		pl.close()
	}()
}

func (p *Player) setSpeaking(on bool) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return
	}

	var flags voice.SpeakingFlags
	if on {
		flags = voice.SpeakingFlagMicrophone
	}
	ctx, cancel := context.WithTimeout(context.Background(), speakingTimeout)
	defer cancel()
	if err := conn.SetSpeaking(ctx, flags); err != nil {
		p.logger.Debug("failed to set speaking", slog.String("error", err.Error()))
	}
}

func (p *Player) setStatusLocked(status domain.PlayerStatus, res *domain.Resource) (ports.PlayerStateChange, []func(ports.PlayerStateChange)) {
	change := ports.PlayerStateChange{Old: p.status, New: status, Resource: res}
	p.status = status

	listeners := make([]func(ports.PlayerStateChange), 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	return change, listeners
}

func notify(listeners []func(ports.PlayerStateChange), change ports.PlayerStateChange) {
	for _, l := range listeners {
		l(change)
	}
}

// frameProvider adapts Player to voice.OpusFrameProvider.
type frameProvider struct {
	player *Player
}

// ProvideOpusFrame returns the next frame, or nil to send nothing this tick.
func (f *frameProvider) ProvideOpusFrame() ([]byte, error) {
	return f.player.nextFrame(), nil
}

// Close is called by the connection when it shuts down. The player outlives it.
func (f *frameProvider) Close() {}

var (
	_ ports.AudioPlayer       = (*Player)(nil)
	_ voice.OpusFrameProvider = (*frameProvider)(nil)
)
