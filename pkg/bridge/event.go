// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"strings"
	"time"
)

// EventKind separates plain chat messages from bot commands.
type EventKind int

const (
	EventMessage EventKind = iota
	EventCommand
)

func (k EventKind) String() string {
	if k == EventCommand {
		return "command"
	}
	return "message"
}

// Sender describes who wrote a message. IsAdmin is asserted by the provider
// only from the network's own admin role in a group conversation. Direct
// chats never set it.
type Sender struct {
	ID          ProviderID
	DisplayName string
	ProfileURL  string
	IsAdmin     bool
}

// Event is what provider adapters publish for every inbound message.
type Event struct {
	Kind         EventKind
	Sender       Sender
	Conversation Conversation
	Body         string
	ReceivedAt   time.Time
}

// ClassifyBody is the default command detection: a leading slash.
func ClassifyBody(body string) EventKind {
	if strings.HasPrefix(strings.TrimSpace(body), "/") {
		return EventCommand
	}
	return EventMessage
}

// EventSink accepts inbound events from adapters.
type EventSink interface {
	Publish(ctx context.Context, evt Event) error
}
