// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// TokenMarker prefixes every pairing token on the wire.
	TokenMarker = "$mbb2$"
	// TokenLength is the number of random characters after the marker.
	TokenLength = 20
)

func (o *Orchestrator) handleToken(ctx context.Context, evt Event, _ Command, log zerolog.Logger) error {
	conv, err := findOrInsertConversation(ctx, o.store, evt.Conversation)
	if err != nil {
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}
	conn := &Connection{
		ID:        uuid.New(),
		Token:     o.newToken(),
		Left:      conv,
		CreatedAt: o.now(),
	}
	if err := o.store.InsertConnection(ctx, conn); err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}
	log.Debug().Stringer("connection_id", conn.ID).Msg("Created pending connection")

	if err := o.reply(ctx, evt, msgTokenCreated); err != nil {
		return err
	}
	return o.reply(ctx, evt, "/connect "+TokenMarker+conn.Token)
}

func (o *Orchestrator) handleConnect(ctx context.Context, evt Event, cmd Command, log zerolog.Logger) error {
	if cmd.Args == "" {
		return o.reply(ctx, evt, msgConnectUsage)
	}
	token, ok := strings.CutPrefix(cmd.Args, TokenMarker)
	if !ok || token == "" {
		return o.reply(ctx, evt, msgInvalidToken)
	}

	conn, err := o.store.FindConnectionByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to find connection by token: %w", err)
	}
	if conn == nil {
		return o.reply(ctx, evt, msgInvalidToken)
	}
	if !conn.Pending() || conn.Expired(o.now()) {
		return o.reply(ctx, evt, msgOutdatedToken)
	}

	caller, err := findOrInsertConversation(ctx, o.store, evt.Conversation)
	if err != nil {
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}
	if conn.Left.ID == caller.ID {
		return o.reply(ctx, evt, msgSelfConnect)
	}
	existing, err := o.store.FindCompletedBetween(ctx, conn.Left.ID, caller.ID)
	if err != nil {
		return fmt.Errorf("failed to check existing connections: %w", err)
	}
	if existing != nil {
		return o.reply(ctx, evt, msgAlreadyConnected)
	}

	log = log.With().Stringer("connection_id", conn.ID).Stringer("left", conn.Left.ID).Logger()
	notice := fmt.Sprintf(msgHandshakeNotice, caller.DisplayTitle())
	if err := o.registry.Send(ctx, conn.Left.ID, notice); err != nil {
		log.Warn().Err(err).Msg("Other side is unreachable, aborting pairing")
		return o.reply(ctx, evt, msgPeerUnreachable)
	}

	completed, err := o.store.CompletePairing(ctx, conn.ID, caller.ID)
	switch {
	case errors.Is(err, ErrAlreadyCompleted):
		return o.reply(ctx, evt, msgOutdatedToken)
	case errors.Is(err, ErrDuplicatePairing):
		return o.reply(ctx, evt, msgAlreadyConnected)
	case errors.Is(err, ErrConflict):
		return o.reply(ctx, evt, msgConnectRace)
	case errors.Is(err, ErrNotFound):
		return o.reply(ctx, evt, msgInvalidToken)
	case err != nil:
		return fmt.Errorf("failed to complete pairing: %w", err)
	}
	log.Info().Stringer("right", caller.ID).Msg("Pairing completed")

	o.notifySides(ctx, completed, log, func(side *Conversation) string {
		return fmt.Sprintf(msgConnectedWith, completed.Other(side.ID).DisplayTitle())
	})
	return nil
}

func (o *Orchestrator) handleList(ctx context.Context, evt Event, _ Command, _ zerolog.Logger) error {
	conv, err := findOrInsertConversation(ctx, o.store, evt.Conversation)
	if err != nil {
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}
	conns, err := o.store.FindConnectionsFor(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}
	if len(conns) == 0 {
		return o.reply(ctx, evt, msgNoConnections)
	}
	return o.reply(ctx, evt, renderConnectionList(conv.ID, conns))
}

func renderConnectionList(self ProviderID, conns []*Connection) string {
	sort.SliceStable(conns, func(i, j int) bool {
		return conns[i].CreatedAt.Before(conns[j].CreatedAt)
	})
	var sb strings.Builder
	sb.WriteString(msgConnectionsHeader)
	for i, conn := range conns {
		left := sideLabel(self, conn.Left)
		if conn.Pending() {
			fmt.Fprintf(&sb, "\n%d. %s ... waiting for /connect  /disconnect_%s", i+1, left, conn.ID)
			continue
		}
		right := sideLabel(self, conn.Right)
		fmt.Fprintf(&sb, "\n%d. %s %s %s  /disconnect_%s", i+1, left, conn.Direction.arrow(), right, conn.ID)
	}
	return sb.String()
}

func sideLabel(self ProviderID, conv *Conversation) string {
	label := fmt.Sprintf("%q [%s]", conv.DisplayTitle(), conv.ID.Provider)
	if conv.ID == self {
		label += " (this chat)"
	}
	return label
}

func (o *Orchestrator) handleDisconnect(ctx context.Context, evt Event, cmd Command, log zerolog.Logger) error {
	if cmd.Args == "" {
		return o.reply(ctx, evt, msgDisconnectUsage)
	}
	id, err := uuid.Parse(cmd.Args)
	if err != nil {
		return o.reply(ctx, evt, fmt.Sprintf(msgInvalidConnection, cmd.Args))
	}
	conn, err := o.store.FindConnection(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find connection: %w", err)
	}
	if conn == nil || !conn.Involves(evt.Conversation.ID) {
		return o.reply(ctx, evt, msgConnectionNotFound)
	}
	if err := o.store.DeleteConnection(ctx, id); errors.Is(err, ErrNotFound) {
		return o.reply(ctx, evt, msgConnectionNotFound)
	} else if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	log = log.With().Stringer("connection_id", id).Logger()
	log.Info().Msg("Connection removed")

	if conn.Pending() {
		return o.reply(ctx, evt, msgPendingRemoved)
	}
	o.notifySides(ctx, conn, log, func(side *Conversation) string {
		return fmt.Sprintf(msgDisconnected, conn.Other(side.ID).DisplayTitle())
	})
	return nil
}

// notifySides sends a message to both ends of a connection concurrently.
// Delivery failures are logged and otherwise ignored.
func (o *Orchestrator) notifySides(ctx context.Context, conn *Connection, log zerolog.Logger, text func(side *Conversation) string) {
	var g errgroup.Group
	for _, side := range conn.Sides() {
		g.Go(func() error {
			if err := o.registry.Send(ctx, side.ID, text(side)); err != nil {
				log.Warn().Err(err).Stringer("target", side.ID).Msg("Failed to notify connection side")
			}
			return nil
		})
	}
	_ = g.Wait()
}
