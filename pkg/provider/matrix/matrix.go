// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrix connects the bridge to a Matrix homeserver as a plain
// client user. It does not use the appservice API.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/relaybridge/pkg/bridge"
)

// Name is the provider name used in conversation and person IDs.
const Name = "matrix"

type Provider struct {
	client *mautrix.Client
	cfg    Config
	log    zerolog.Logger

	namesMu sync.Mutex
	names   map[id.RoomID]string
}

var (
	_ bridge.Provider = (*Provider)(nil)
	_ bridge.Receiver = (*Provider)(nil)
)

// New creates a client for the configured account. No request is made until
// Run or Send.
func New(cfg Config, log zerolog.Logger) (*Provider, error) {
	log = log.With().Str("component", "matrix").Logger()
	client, err := mautrix.NewClient(cfg.HomeserverURL, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	client.Log = log
	return &Provider{
		client: client,
		cfg:    cfg,
		log:    log,
		names:  make(map[id.RoomID]string),
	}, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Send(ctx context.Context, conversation bridge.ProviderID, text string) error {
	if _, err := p.client.SendText(ctx, id.RoomID(conversation.Native), text); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", conversation.Native, err)
	}
	return nil
}

// Run syncs until ctx is cancelled. Events from before the first sync are
// skipped so a restart does not replay history.
func (p *Provider) Run(ctx context.Context, sink bridge.EventSink) error {
	syncer, ok := p.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix client has an unexpected syncer")
	}
	syncer.OnSync(p.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		p.handleMessage(ctx, sink, evt)
	})
	syncer.OnEventType(event.StateRoomName, func(_ context.Context, evt *event.Event) {
		p.forgetRoomName(evt.RoomID)
	})
	if p.cfg.AutoJoin {
		syncer.OnEventType(event.StateMember, p.handleMember)
	}

	p.log.Info().Str("homeserver", p.cfg.HomeserverURL).Str("user_id", p.cfg.UserID).Msg("Starting sync")
	err := p.client.SyncWithContext(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("matrix sync stopped: %w", err)
}

func (p *Provider) handleMember(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != p.client.UserID.String() {
		return
	}
	if evt.Content.AsMember().Membership != event.MembershipInvite {
		return
	}
	log := p.log.With().Stringer("room_id", evt.RoomID).Stringer("inviter", evt.Sender).Logger()
	if _, err := p.client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		log.Warn().Err(err).Msg("Failed to accept invite")
		return
	}
	log.Info().Msg("Joined room after invite")
}

func (p *Provider) handleMessage(ctx context.Context, sink bridge.EventSink, evt *event.Event) {
	converted, ok := messageToEvent(evt, p.client.UserID)
	if !ok {
		return
	}
	converted.Conversation.Title = p.roomName(ctx, evt.RoomID)
	converted.Sender.DisplayName = p.displayName(ctx, evt.Sender)
	if err := sink.Publish(ctx, converted); err != nil {
		p.log.Warn().Err(err).Stringer("event_id", evt.ID).Msg("Failed to publish message")
	}
}

// messageToEvent converts text and emote messages. Notices are skipped
// because bots use them for their own output.
func messageToEvent(evt *event.Event, self id.UserID) (bridge.Event, bool) {
	if evt == nil || evt.Sender == self {
		return bridge.Event{}, false
	}
	content := evt.Content.AsMessage()
	if content.MsgType != event.MsgText && content.MsgType != event.MsgEmote {
		return bridge.Event{}, false
	}
	body := strings.TrimSpace(content.Body)
	if body == "" {
		return bridge.Event{}, false
	}
	return bridge.Event{
		Kind: bridge.ClassifyBody(body),
		Sender: bridge.Sender{
			ID:          bridge.NewProviderID(Name, evt.Sender.String()),
			DisplayName: evt.Sender.Localpart(),
			ProfileURL:  "https://matrix.to/#/" + evt.Sender.String(),
		},
		Conversation: bridge.Conversation{
			ID: bridge.NewProviderID(Name, evt.RoomID.String()),
		},
		Body:       body,
		ReceivedAt: time.UnixMilli(evt.Timestamp),
	}, true
}

// roomName reads m.room.name, caching it until the next name change.
// Rooms without a name fall back to their ID.
func (p *Provider) roomName(ctx context.Context, roomID id.RoomID) string {
	p.namesMu.Lock()
	name, ok := p.names[roomID]
	p.namesMu.Unlock()
	if ok {
		return name
	}

	var content event.RoomNameEventContent
	if err := p.client.StateEvent(ctx, roomID, event.StateRoomName, "", &content); err != nil {
		p.log.Debug().Err(err).Stringer("room_id", roomID).Msg("Failed to get room name")
		return roomID.String()
	}
	name = content.Name
	if name == "" {
		name = roomID.String()
	}
	p.namesMu.Lock()
	p.names[roomID] = name
	p.namesMu.Unlock()
	return name
}

func (p *Provider) forgetRoomName(roomID id.RoomID) {
	p.namesMu.Lock()
	delete(p.names, roomID)
	p.namesMu.Unlock()
}

func (p *Provider) displayName(ctx context.Context, userID id.UserID) string {
	resp, err := p.client.GetDisplayName(ctx, userID)
	if err != nil || resp.DisplayName == "" {
		return userID.Localpart()
	}
	return resp.DisplayName
}
