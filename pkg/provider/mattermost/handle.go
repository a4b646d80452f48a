// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/relaybridge/pkg/bridge"
)

// handleEvent dispatches a Mattermost WebSocket event. Only new posts are
// relayed.
func (p *Provider) handleEvent(ctx context.Context, sink bridge.EventSink, evt *model.WebSocketEvent) {
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		p.handlePosted(ctx, sink, evt)
	default:
		p.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
	}
}

// parsePostedEvent extracts and validates a post from a WebSocket event,
// applying all echo prevention layers. Returns (nil, nil) to skip silently,
// (nil, err) to log an error, or (post, nil) to proceed.
func (p *Provider) parsePostedEvent(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	// Echo prevention: skip own posts.
	if post.UserId == p.userID {
		return nil, nil
	}

	// Skip non-default post types (joins, header changes and other system messages).
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}

	// Echo prevention: skip posts from other bridge bots.
	if name := senderName(evt); name != "" && isBridgeUsername(name, p.cfg.BotPrefix) {
		p.log.Debug().
			Str("post_id", post.Id).
			Str("username", name).
			Msg("Skipping bridge username post (echo prevention)")
		return nil, nil
	}

	return &post, nil
}

func (p *Provider) handlePosted(ctx context.Context, sink bridge.EventSink, evt *model.WebSocketEvent) {
	post, err := p.parsePostedEvent(evt)
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to parse posted event")
		return
	}
	if post == nil || strings.TrimSpace(post.Message) == "" {
		return
	}

	p.log.Debug().
		Str("post_id", post.Id).
		Str("channel_id", post.ChannelId).
		Str("user_id", post.UserId).
		Msg("Received new message")

	event := p.postToEvent(evt, post)
	if event.Kind == bridge.EventCommand {
		event.Sender.IsAdmin = p.isChannelAdmin(ctx, evt, post)
	}
	if err := sink.Publish(ctx, event); err != nil {
		p.log.Warn().Err(err).Str("post_id", post.Id).Msg("Failed to publish message")
	}
}

// postToEvent converts a post. Admin rights are resolved separately from
// channel and team roles.
func (p *Provider) postToEvent(evt *model.WebSocketEvent, post *model.Post) bridge.Event {
	title, _ := evt.GetData()["channel_display_name"].(string)
	name := senderName(evt)

	return bridge.Event{
		Kind: bridge.ClassifyBody(post.Message),
		Sender: bridge.Sender{
			ID:          bridge.NewProviderID(Name, post.UserId),
			DisplayName: name,
			ProfileURL:  p.profileURL(name),
		},
		Conversation: bridge.Conversation{
			ID:    bridge.NewProviderID(Name, post.ChannelId),
			Title: title,
		},
		Body:       post.Message,
		ReceivedAt: time.UnixMilli(post.CreateAt),
	}
}

// isChannelAdmin reports whether the poster is a channel admin, or a team
// admin of the channel's team. Direct and group message channels have no
// admin role. Lookup failures deny.
func (p *Provider) isChannelAdmin(ctx context.Context, evt *model.WebSocketEvent, post *model.Post) bool {
	data := evt.GetData()
	channelType, _ := data["channel_type"].(string)
	switch model.ChannelType(channelType) {
	case model.ChannelTypeDirect, model.ChannelTypeGroup:
		return false
	}

	member, _, err := p.client.GetChannelMember(ctx, post.ChannelId, post.UserId, "")
	if err != nil {
		p.log.Warn().Err(err).Str("channel_id", post.ChannelId).Str("user_id", post.UserId).Msg("Failed to look up channel member")
	} else if member.SchemeAdmin || hasRole(member.Roles, model.ChannelAdminRoleId) {
		return true
	}

	teamID, _ := data["team_id"].(string)
	if teamID == "" {
		return false
	}
	teamMember, _, err := p.client.GetTeamMember(ctx, teamID, post.UserId, "")
	if err != nil {
		p.log.Warn().Err(err).Str("team_id", teamID).Str("user_id", post.UserId).Msg("Failed to look up team member")
		return false
	}
	return teamMember.SchemeAdmin || hasRole(teamMember.Roles, model.TeamAdminRoleId)
}

func hasRole(roles, role string) bool {
	for _, r := range strings.Fields(roles) {
		if r == role {
			return true
		}
	}
	return false
}

func (p *Provider) profileURL(username string) string {
	if username == "" || p.cfg.ServerURL == "" {
		return ""
	}
	return strings.TrimSuffix(p.cfg.ServerURL, "/") + "/messages/@" + username
}

func senderName(evt *model.WebSocketEvent) string {
	name, _ := evt.GetData()["sender_name"].(string)
	return strings.TrimPrefix(name, "@")
}

// isBridgeUsername reports whether a username belongs to a bridge bot.
func isBridgeUsername(username, botPrefix string) bool {
	switch {
	case username == "mattermost-bridge":
		return true
	case strings.HasPrefix(username, "mattermost_"):
		return true
	case botPrefix != "" && strings.HasPrefix(username, botPrefix):
		return true
	default:
		return false
	}
}
