package app

import (
	"log/slog"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/godave/golibdave"
	"github.com/disgoorg/snowflake/v2"

	"github.com/tejashwikalptaru/dtune/internal/adapter/transport/discord"
	"github.com/tejashwikalptaru/dtune/internal/config"
)

// departures tells voice departures the transport caused apart from external ones.
type departures interface {
	ExternalLeave(guildID snowflake.ID) bool
}

// handleBotLeft calls onLeft unless the departure was one the transport
// started itself (a move, a re-join or a session teardown).
func handleBotLeft(log *slog.Logger, tracker departures, guildID snowflake.ID, onLeft func(guildID string)) bool {
	if !tracker.ExternalLeave(guildID) {
		log.Debug("ignoring own voice departure", slog.String("guild_id", guildID.String()))
		return false
	}
	log.Info("bot left voice channel", slog.String("guild_id", guildID.String()))
	go onLeft(guildID.String())
	return true
}

// newDiscordTransport creates the gateway client and a voice transport on top
// of its voice manager. onLeft is called with the guild id whenever the bot's
// own voice state shows it was removed from a channel.
func newDiscordTransport(
	log *slog.Logger,
	cfg config.Config,
	onLeft func(guildID string),
) (*bot.Client, *discord.Transport, error) {
	var transport *discord.Transport
	client, err := disgo.New(cfg.DiscordToken,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildVoiceStates,
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagChannels, cache.FlagVoiceStates),
		),
		bot.WithVoiceManagerConfigOpts(
			voice.WithDaveSessionCreateFunc(golibdave.NewSession),
		),
		bot.WithEventListenerFunc(func(event *events.GuildVoiceStateUpdate) {
			if event.VoiceState.UserID != event.Client().ID() || event.VoiceState.ChannelID != nil {
				return
			}
			handleBotLeft(log, transport, event.VoiceState.GuildID, onLeft)
		}),
		bot.WithLogger(log.With(slog.String("component", "disgo"))),
	)
	if err != nil {
		return nil, nil, err
	}

	transport = discord.NewTransport(log, client.VoiceManager, discord.Options{
		FFmpegPath: cfg.FFmpegPath,
	})
	return client, transport, nil
}
