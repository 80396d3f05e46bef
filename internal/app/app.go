// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"

	"github.com/tejashwikalptaru/dtune/internal/adapter/eventbus"
	mockresolver "github.com/tejashwikalptaru/dtune/internal/adapter/resolver/mock"
	"github.com/tejashwikalptaru/dtune/internal/adapter/resolver/youtube"
	"github.com/tejashwikalptaru/dtune/internal/adapter/resolver/ytdlp"
	mocktransport "github.com/tejashwikalptaru/dtune/internal/adapter/transport/mock"
	"github.com/tejashwikalptaru/dtune/internal/config"
	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/logger"
	"github.com/tejashwikalptaru/dtune/internal/ports"
	"github.com/tejashwikalptaru/dtune/internal/service"
	"github.com/tejashwikalptaru/dtune/internal/track"
)

// shutdownTimeout bounds session teardown and gateway close on shutdown.
const shutdownTimeout = 10 * time.Second

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Managing the application lifecycle (startup, shutdown)
// - Providing a clean entry point for main.go
type Application struct {
	// Core dependencies
	logger *slog.Logger
	config config.Config

	// Infrastructure
	eventBus  ports.EventBus
	transport ports.VoiceTransport
	resolver  ports.MediaResolver
	client    *bot.Client // nil unless the discord transport is used

	// Services
	factory    *track.Factory
	registry   *service.Registry
	controller *service.Controller

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewApplication creates a new application with all dependencies wired.
// This is the main dependency injection function.
func NewApplication(cfg config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &Application{config: cfg}

	// Step 1: Create logger
	level, _ := logger.ParseLevel(cfg.LogLevel)
	app.logger = logger.NewLogger(logger.Config{
		Level:  level,
		Format: cfg.LogFormat,
	})
	app.logger.Info("initializing application",
		slog.String("version", GetVersionInfo().FullString()),
		slog.String("transport", cfg.Transport),
		slog.String("resolver", cfg.Resolver))

	// Step 2: Create an event bus
	busLogger := app.logger.With(slog.String("component", "eventbus"))
	if cfg.EventBus == config.EventBusSync {
		bus := eventbus.NewSyncEventBus()
		bus.SetLogger(busLogger)
		app.eventBus = bus
	} else {
		bus := eventbus.NewAsyncEventBus()
		bus.SetLogger(busLogger)
		app.eventBus = bus
	}
	app.eventBus.SubscribeAll(app.logEvent)

	// Step 3: Create a media resolver
	resolver, err := newResolver(app.logger, cfg)
	if err != nil {
		_ = app.eventBus.Close()
		return nil, fmt.Errorf("failed to create media resolver: %w", err)
	}
	app.resolver = resolver

	// Step 4: Create a voice transport
	if cfg.Transport == config.TransportDiscord {
		client, transport, err := newDiscordTransport(app.logger, cfg, app.onBotLeftVoice)
		if err != nil {
			_ = app.eventBus.Close()
			return nil, fmt.Errorf("failed to create discord client: %w", err)
		}
		app.client = client
		app.transport = transport
	} else {
		transport := mocktransport.NewTransport()
		transport.SetLogger(app.logger.With(slog.String("adapter", "mock_transport")))
		app.transport = transport
	}

	// Step 5: Create services (with dependency injection)
	app.factory = track.NewFactory(
		app.logger,
		app.resolver,
		track.WithLocalFiles(cfg.AllowLocalFiles),
		track.WithSearchLimit(cfg.SearchLimit),
	)

	app.registry = service.NewRegistry(
		app.logger,
		app.transport,
		app.eventBus,
		service.SessionConfig{
			ConnectTimeout:       cfg.ConnectTimeout,
			PlaybackStartTimeout: cfg.PlaybackStartTimeout,
		},
	)

	app.controller = service.NewController(app.logger, app.registry, app.factory)

	return app, nil
}

func newResolver(log *slog.Logger, cfg config.Config) (ports.MediaResolver, error) {
	switch cfg.Resolver {
	case config.ResolverMock:
		r := mockresolver.NewResolver()
		r.SetLogger(log.With(slog.String("adapter", "mock_resolver")))
		return r, nil
	case config.ResolverYtDlp:
		return ytdlp.NewResolver(log, ytdlp.Config{
			Executable:   cfg.YtDlpPath,
			SearchSource: cfg.SearchSource,
			Rate:         cfg.ResolverRate,
			Burst:        cfg.ResolverBurst,
			Proxy:        cfg.Proxy,
		})
	default:
		return youtube.NewResolver(log, youtube.Config{
			SearchSource: cfg.SearchSource,
			Rate:         cfg.ResolverRate,
			Burst:        cfg.ResolverBurst,
			Proxy:        cfg.Proxy,
		})
	}
}

// logEvent traces every published event at debug level.
func (a *Application) logEvent(event domain.Event) {
	a.logger.Debug("event",
		slog.String("type", string(event.Type())),
		slog.String("group_id", event.GroupID()))
}

// onBotLeftVoice destroys the session of a guild the bot was removed from.
func (a *Application) onBotLeftVoice(guildID string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.controller.Stop(ctx, guildID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		a.logger.Warn("failed to stop session after voice disconnect",
			slog.String("group_id", guildID),
			slog.String("error", err.Error()))
	}
}

// Run starts the application and blocks until ctx is done.
// This is called from main.go after the application is created.
func (a *Application) Run(ctx context.Context) error {
	if a.client != nil {
		if err := a.client.OpenGateway(ctx); err != nil {
			return fmt.Errorf("failed to open gateway: %w", err)
		}
		a.logger.Info("connected to discord gateway")
	}

	a.logger.Info("dtune started")
	<-ctx.Done()
	return nil
}

// Shutdown gracefully shuts down the application.
// This should be called via deferring in main.go. Later calls are no-ops.
func (a *Application) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down application")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Destroy sessions first so players stop before connections go away
		if err := a.registry.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to shutdown sessions", slog.Any("error", err))
			a.shutdownErr = err
		}

		if closer, ok := a.transport.(interface{ Close(context.Context) }); ok {
			closer.Close(ctx)
		}

		if a.client != nil {
			a.client.Close(ctx)
		}

		if err := a.eventBus.Close(); err != nil {
			a.logger.Warn("failed to close event bus", slog.Any("error", err))
		}

		a.logger.Info("application shutdown complete")
	})
	return a.shutdownErr
}

// Controller returns the playback controller.
func (a *Application) Controller() *service.Controller {
	return a.controller
}

// EventBus returns the event bus.
func (a *Application) EventBus() ports.EventBus {
	return a.eventBus
}

// Transport returns the voice transport.
func (a *Application) Transport() ports.VoiceTransport {
	return a.transport
}

// Resolver returns the media resolver.
func (a *Application) Resolver() ports.MediaResolver {
	return a.resolver
}
