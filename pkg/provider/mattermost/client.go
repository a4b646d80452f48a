// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mattermost connects the bridge to a Mattermost server as a bot
// account: posts arrive over the WebSocket API and replies go out with
// CreatePost.
package mattermost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/relaybridge/pkg/bridge"
)

// Name is the provider name used in conversation and person IDs.
const Name = "mattermost"

const reconnectDelay = 5 * time.Second

// Provider is a single authenticated Mattermost bot connection.
type Provider struct {
	cfg    Config
	client *model.Client4
	userID string
	log    zerolog.Logger

	// reconnectDelay is shortened in tests.
	reconnectDelay time.Duration
}

var (
	_ bridge.Provider = (*Provider)(nil)
	_ bridge.Receiver = (*Provider)(nil)
)

// New creates a provider. No network traffic happens until Run.
func New(cfg Config, log zerolog.Logger) *Provider {
	client := model.NewAPIv4Client(strings.TrimSuffix(cfg.ServerURL, "/"))
	client.SetToken(cfg.Token)
	return &Provider{
		cfg:            cfg,
		client:         client,
		log:            log.With().Str("component", "mm_client").Logger(),
		reconnectDelay: reconnectDelay,
	}
}

func (p *Provider) Name() string {
	return Name
}

// Send posts text to a channel.
func (p *Provider) Send(ctx context.Context, conversation bridge.ProviderID, text string) error {
	post := &model.Post{
		ChannelId: conversation.Native,
		Message:   text,
	}
	if _, _, err := p.client.CreatePost(ctx, post); err != nil {
		return fmt.Errorf("failed to create post in %s: %w", conversation.Native, err)
	}
	return nil
}

// Run verifies the session and then listens on the WebSocket API until ctx
// is cancelled, reconnecting whenever the socket drops.
func (p *Provider) Run(ctx context.Context, sink bridge.EventSink) error {
	p.log.Info().Str("server_url", p.cfg.ServerURL).Msg("Connecting to Mattermost")

	me, _, err := p.client.GetMe(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to verify Mattermost session: %w", err)
	}
	p.userID = me.Id
	p.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")

	for {
		err := p.listen(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}
		p.log.Warn().Err(err).Dur("retry_in", p.reconnectDelay).Msg("WebSocket disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.reconnectDelay):
		}
	}
}

var errSocketClosed = errors.New("websocket event channel closed")

func (p *Provider) listen(ctx context.Context, sink bridge.EventSink) error {
	wsURL := httpToWS(p.client.URL)
	ws, err := model.NewWebSocketClient4(wsURL, p.client.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to create websocket client: %w", err)
	}
	defer ws.Close()
	ws.Listen()
	p.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ws.EventChannel:
			if !ok {
				return errSocketClosed
			}
			if evt == nil {
				continue
			}
			p.handleEvent(ctx, sink, evt)
		}
	}
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
