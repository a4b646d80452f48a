// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
)

// route forwards a plain message to every conversation the direction
// policies allow. Forwards run in the background and failures are only
// logged.
func (o *Orchestrator) route(ctx context.Context, evt Event) {
	origin := evt.Conversation.ID
	log := o.log.With().Stringer("origin", origin).Logger()

	conns, err := o.store.FindConnectionsFor(ctx, origin)
	if err != nil {
		log.Error().Err(err).Msg("Failed to look up connections for message")
		return
	}
	if len(conns) == 0 {
		return
	}

	displayName := evt.Sender.DisplayName
	if displayName == "" {
		displayName = evt.Sender.ID.Native
	}
	text := o.config.FormatRelayPrefix(RelayPrefixParams{
		DisplayName:  displayName,
		Provider:     origin.Provider,
		Conversation: evt.Conversation.Title,
	}) + evt.Body

	for _, conn := range conns {
		target := conn.ForwardTarget(origin)
		if target == nil {
			continue
		}
		o.forwards.Add(1)
		go func() {
			defer o.forwards.Done()
			if err := o.registry.Send(ctx, target.ID, text); err != nil {
				log.Warn().Err(err).
					Stringer("connection_id", conn.ID).
					Stringer("target", target.ID).
					Msg("Failed to forward message")
				return
			}
			log.Trace().
				Stringer("connection_id", conn.ID).
				Stringer("target", target.ID).
				Msg("Forwarded message")
		}()
	}
}
