// Copyright 2024-2026 Aiku AI

// Package discord connects the bridge to Discord through the gateway API.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/aiku/relaybridge/pkg/bridge"
)

// Name is the provider name used in conversation and person IDs.
const Name = "discord"

const intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

type Provider struct {
	session *discordgo.Session
	log     zerolog.Logger

	// permissions resolves a member's effective permissions in a channel.
	permissions func(userID, channelID string) (int64, error)
}

var (
	_ bridge.Provider = (*Provider)(nil)
	_ bridge.Receiver = (*Provider)(nil)
)

// New prepares a bot session. The gateway connection is opened by Run.
func New(cfg Config, log zerolog.Logger) (*Provider, error) {
	log = log.With().Str("component", "discord").Logger()
	routeLibraryLogs(log)

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = intents
	p := &Provider{session: session, log: log}
	p.permissions = p.channelPermissions
	return p, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Send(_ context.Context, conversation bridge.ProviderID, text string) error {
	if _, err := p.session.ChannelMessageSend(conversation.Native, text); err != nil {
		return fmt.Errorf("failed to send message to channel %s: %w", conversation.Native, err)
	}
	return nil
}

// Run opens the gateway connection and blocks until ctx is cancelled.
// discordgo reconnects on its own.
func (p *Provider) Run(ctx context.Context, sink bridge.EventSink) error {
	remove := p.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		p.handleMessageCreate(ctx, sink, m.Message)
	})
	defer remove()

	if err := p.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	p.log.Info().Str("user_id", p.selfID()).Msg("Connected to Discord gateway")

	<-ctx.Done()
	if err := p.session.Close(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to close discord session")
	}
	return nil
}

func (p *Provider) selfID() string {
	if p.session.State == nil || p.session.State.User == nil {
		return ""
	}
	return p.session.State.User.ID
}

func (p *Provider) handleMessageCreate(ctx context.Context, sink bridge.EventSink, m *discordgo.Message) {
	evt, ok := messageToEvent(m, p.selfID())
	if !ok {
		return
	}
	evt.Conversation.Title = p.channelTitle(m)
	if evt.Kind == bridge.EventCommand {
		evt.Sender.IsAdmin = p.isGuildAdmin(m)
	}
	if err := sink.Publish(ctx, evt); err != nil {
		p.log.Warn().Err(err).Str("message_id", m.ID).Msg("Failed to publish message")
	}
}

// channelTitle prefers the state cache and falls back to a REST lookup.
func (p *Provider) channelTitle(m *discordgo.Message) string {
	ch, err := p.session.State.Channel(m.ChannelID)
	if err != nil {
		ch, err = p.session.Channel(m.ChannelID)
	}
	if err != nil {
		p.log.Debug().Err(err).Str("channel_id", m.ChannelID).Msg("Failed to look up channel")
		return dmTitle(m)
	}
	if ch.Name != "" {
		return "#" + ch.Name
	}
	return dmTitle(m)
}

// channelPermissions prefers the state cache and falls back to a REST lookup.
func (p *Provider) channelPermissions(userID, channelID string) (int64, error) {
	perms, err := p.session.State.UserChannelPermissions(userID, channelID)
	if err == nil {
		return perms, nil
	}
	return p.session.UserChannelPermissions(userID, channelID)
}

// isGuildAdmin reports whether the author holds an admin permission in the
// message's channel. Direct messages have no guild and grant nothing.
func (p *Provider) isGuildAdmin(m *discordgo.Message) bool {
	if m.GuildID == "" || m.Author == nil {
		return false
	}
	perms, err := p.permissions(m.Author.ID, m.ChannelID)
	if err != nil {
		p.log.Warn().Err(err).Str("user_id", m.Author.ID).Str("channel_id", m.ChannelID).Msg("Failed to look up permissions")
		return false
	}
	return hasAdminPermissions(perms)
}

func hasAdminPermissions(perms int64) bool {
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageChannels) != 0
}

func dmTitle(m *discordgo.Message) string {
	if m.GuildID == "" && m.Author != nil {
		return "DM with " + m.Author.DisplayName()
	}
	return ""
}

// messageToEvent converts a gateway message. Bots are ignored. Admin rights
// are resolved separately from guild permissions.
func messageToEvent(m *discordgo.Message, selfID string) (bridge.Event, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == selfID {
		return bridge.Event{}, false
	}
	body := strings.TrimSpace(m.Content)
	if body == "" {
		return bridge.Event{}, false
	}
	return bridge.Event{
		Kind: bridge.ClassifyBody(body),
		Sender: bridge.Sender{
			ID:          bridge.NewProviderID(Name, m.Author.ID),
			DisplayName: m.Author.DisplayName(),
			ProfileURL:  m.Author.AvatarURL(""),
		},
		Conversation: bridge.Conversation{
			ID: bridge.NewProviderID(Name, m.ChannelID),
		},
		Body:       body,
		ReceivedAt: m.Timestamp,
	}, true
}

// routeLibraryLogs sends discordgo's package-level logging to zerolog.
func routeLibraryLogs(log zerolog.Logger) {
	discordgo.Logger = func(msgL, _ int, format string, a ...any) {
		var e *zerolog.Event
		switch msgL {
		case discordgo.LogError:
			e = log.Error()
		case discordgo.LogWarning:
			e = log.Warn()
		case discordgo.LogInformational:
			e = log.Debug()
		default:
			e = log.Trace()
		}
		e.Msgf(format, a...)
	}
}
