// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/relaybridge/pkg/bridge"
)

// recordingSink captures published events for test assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []bridge.Event
}

func (s *recordingSink) Publish(_ context.Context, evt bridge.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) Events() []bridge.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]bridge.Event, len(s.events))
	copy(cp, s.events)
	return cp
}

// fakeMM serves the REST endpoints the provider uses: users/me for the bot
// identity, posts for relayed messages and channel or team members for admin
// lookups. It has no WebSocket route.
type fakeMM struct {
	Server *httptest.Server

	// BotToken is the only token users/me accepts. Bot is returned for it.
	BotToken string
	Bot      model.User
	// FailPosts makes every CreatePost return 500.
	FailPosts bool
	// ChannelRoles and TeamRoles hold member roles keyed by user ID. Users
	// missing from a map get 404.
	ChannelRoles map[string]string
	TeamRoles    map[string]string

	mu    sync.Mutex
	posts []model.Post
}

func newFakeMM(t *testing.T) *fakeMM {
	f := &fakeMM{
		BotToken: "good",
		Bot:      model.User{Id: "bot-id", Username: "relay"},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeMM) Posts() []model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Post(nil), f.posts...)
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": msg, "status_code": status})
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v4/users/me":
		token := strings.TrimPrefix(strings.TrimPrefix(r.Header.Get("Authorization"), "BEARER "), "Bearer ")
		if token != f.BotToken {
			writeAPIError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		_ = json.NewEncoder(w).Encode(&f.Bot)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v4/posts":
		if f.FailPosts {
			writeAPIError(w, http.StatusInternalServerError, "fake error")
			return
		}
		var post model.Post
		if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
			writeAPIError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.mu.Lock()
		f.posts = append(f.posts, post)
		f.mu.Unlock()
		post.Id = model.NewId()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&post)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v4/channels/"):
		channelID, userID, ok := memberPath(r.URL.Path, "/api/v4/channels/")
		roles, known := f.ChannelRoles[userID]
		if !ok || !known {
			writeAPIError(w, http.StatusNotFound, "channel member not found")
			return
		}
		_ = json.NewEncoder(w).Encode(&model.ChannelMember{ChannelId: channelID, UserId: userID, Roles: roles})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v4/teams/"):
		teamID, userID, ok := memberPath(r.URL.Path, "/api/v4/teams/")
		roles, known := f.TeamRoles[userID]
		if !ok || !known {
			writeAPIError(w, http.StatusNotFound, "team member not found")
			return
		}
		_ = json.NewEncoder(w).Encode(&model.TeamMember{TeamId: teamID, UserId: userID, Roles: roles})
	default:
		writeAPIError(w, http.StatusNotFound, "no route for "+r.URL.Path)
	}
}

// memberPath splits "<prefix><id>/members/<user>".
func memberPath(path, prefix string) (id, userID string, ok bool) {
	id, userID, ok = strings.Cut(strings.TrimPrefix(path, prefix), "/members/")
	return id, userID, ok && id != "" && userID != "" && !strings.Contains(userID, "/")
}

// newWebSocketEvent creates a model.WebSocketEvent for testing handlers.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

// postedEvent builds a posted event the way the server broadcasts it.
func postedEvent(post *model.Post, senderName, channelType, channelName string) *model.WebSocketEvent {
	postJSON, _ := json.Marshal(post)
	return newWebSocketEvent(model.WebsocketEventPosted, post.ChannelId, map[string]any{
		"post":                 string(postJSON),
		"sender_name":          senderName,
		"channel_type":         channelType,
		"channel_display_name": channelName,
	})
}

// newTestProvider creates a Provider pointed at serverURL that believes it
// is logged in as my-user-id.
func newTestProvider(serverURL string) *Provider {
	p := New(Config{Enabled: true, ServerURL: serverURL, Token: "test-token", BotPrefix: "relay_"}, zerolog.Nop())
	p.userID = "my-user-id"
	return p
}
