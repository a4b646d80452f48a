// Copyright 2024-2026 Aiku AI

// Package telegram connects the bridge to the Telegram Bot API using long
// polling.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/aiku/relaybridge/pkg/bridge"
)

// Name is the provider name used in conversation and person IDs.
const Name = "telegram"

const defaultPollTimeout = 30

type Provider struct {
	bot *tgbotapi.BotAPI
	cfg Config
	log zerolog.Logger
}

var (
	_ bridge.Provider = (*Provider)(nil)
	_ bridge.Receiver = (*Provider)(nil)
)

// New logs in with the bot token. It fails if the token is rejected.
func New(cfg Config, log zerolog.Logger) (*Provider, error) {
	return newWithClient(cfg, log, &http.Client{})
}

func newWithClient(cfg Config, log zerolog.Logger, client tgbotapi.HTTPClient) (*Provider, error) {
	log = log.With().Str("component", "telegram").Logger()
	_ = tgbotapi.SetLogger(botLogger{log: log})

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to log in to Telegram: %w", err)
	}
	log.Info().Int64("bot_id", bot.Self.ID).Str("username", bot.Self.UserName).Msg("Authenticated")
	return &Provider{bot: bot, cfg: cfg, log: log}, nil
}

func (p *Provider) Name() string {
	return Name
}

// Send posts plain text to a chat. Telegram chat IDs are integers.
func (p *Provider) Send(_ context.Context, conversation bridge.ProviderID, text string) error {
	chatID, err := strconv.ParseInt(conversation.Native, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", conversation.Native, err)
	}
	if _, err := p.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return nil
}

// Run long-polls for updates until ctx is cancelled.
func (p *Provider) Run(ctx context.Context, sink bridge.EventSink) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = p.cfg.PollTimeout
	if updateConfig.Timeout <= 0 {
		updateConfig.Timeout = defaultPollTimeout
	}
	updates := p.bot.GetUpdatesChan(updateConfig)
	p.log.Info().Msg("Polling for updates")

	for {
		select {
		case <-ctx.Done():
			p.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			evt, ok := p.messageToEvent(update.Message)
			if !ok {
				continue
			}
			if err := sink.Publish(ctx, evt); err != nil {
				p.log.Warn().Err(err).Int("update_id", update.UpdateID).Msg("Failed to publish message")
			}
		}
	}
}

// messageToEvent converts a text message. Commands addressed to a different
// bot are dropped. A command sender is an in-band admin only when Telegram
// reports them as creator or administrator of a group chat.
func (p *Provider) messageToEvent(msg *tgbotapi.Message) (bridge.Event, bool) {
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return bridge.Event{}, false
	}
	if msg.From.ID == p.bot.Self.ID {
		return bridge.Event{}, false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return bridge.Event{}, false
	}

	kind := bridge.EventMessage
	if msg.IsCommand() {
		kind = bridge.EventCommand
		withAt := msg.CommandWithAt()
		if _, target, ok := strings.Cut(withAt, "@"); ok && !strings.EqualFold(target, p.bot.Self.UserName) {
			return bridge.Event{}, false
		}
		text = "/" + msg.Command() + msg.Text[1+len(withAt):]
	}

	return bridge.Event{
		Kind: kind,
		Sender: bridge.Sender{
			ID:          bridge.NewProviderID(Name, strconv.FormatInt(msg.From.ID, 10)),
			DisplayName: userDisplayName(msg.From),
			ProfileURL:  profileURL(msg.From.UserName),
			IsAdmin:     kind == bridge.EventCommand && p.isChatAdmin(msg.Chat, msg.From.ID),
		},
		Conversation: bridge.Conversation{
			ID:    bridge.NewProviderID(Name, strconv.FormatInt(msg.Chat.ID, 10)),
			Title: chatTitle(msg.Chat),
		},
		Body:       strings.TrimSpace(text),
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}, true
}

// isChatAdmin asks Telegram for the sender's membership status. Private chats
// carry no admin role, and lookup failures deny.
func (p *Provider) isChatAdmin(chat *tgbotapi.Chat, userID int64) bool {
	if chat.IsPrivate() {
		return false
	}
	member, err := p.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chat.ID, UserID: userID},
	})
	if err != nil {
		p.log.Warn().Err(err).Int64("chat_id", chat.ID).Int64("user_id", userID).Msg("Failed to look up chat member")
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

func userDisplayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}

func profileURL(username string) string {
	if username == "" {
		return ""
	}
	return "https://t.me/" + username
}

func chatTitle(c *tgbotapi.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	if name := strings.TrimSpace(c.FirstName + " " + c.LastName); name != "" {
		return name
	}
	return c.UserName
}

// botLogger routes the library's log output into zerolog.
type botLogger struct {
	log zerolog.Logger
}

func (l botLogger) Println(v ...any) {
	l.log.Warn().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l botLogger) Printf(format string, v ...any) {
	l.log.Warn().Msgf(format, v...)
}
