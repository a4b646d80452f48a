// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// IsAdmin is the single capability check for privileged commands. It
// consults, in order, the global auth switch, the provider-asserted flag and
// the persisted promotion.
func (o *Orchestrator) IsAdmin(ctx context.Context, sender Sender) (bool, error) {
	if !o.config.Auth.Enabled {
		return true, nil
	}
	if sender.IsAdmin {
		return true, nil
	}
	person, err := o.store.FindPerson(ctx, sender.ID)
	if err != nil {
		return false, fmt.Errorf("failed to look up person %s: %w", sender.ID, err)
	}
	return person != nil && person.IsAdmin, nil
}

// ensureHasAdminRights tells the sender how to authenticate when the check
// fails.
func (o *Orchestrator) ensureHasAdminRights(ctx context.Context, evt Event, log zerolog.Logger) (bool, error) {
	allowed, err := o.IsAdmin(ctx, evt.Sender)
	if err != nil || allowed {
		return allowed, err
	}
	log.Trace().Msg("Sender is not an admin")
	return false, o.reply(ctx, evt, msgAdminRequired)
}

func (o *Orchestrator) handleAuth(ctx context.Context, evt Event, cmd Command, log zerolog.Logger) error {
	if !o.config.Auth.Enabled {
		return o.reply(ctx, evt, msgAuthDisabled)
	}
	if cmd.Args == "" {
		return o.reply(ctx, evt, msgAuthUsage)
	}
	ok, err := CheckPassword(o.config.Auth.Password, cmd.Args)
	if err != nil {
		return fmt.Errorf("failed to check password: %w", err)
	}
	if !ok {
		log.Trace().Msg("Wrong admin password")
		return o.reply(ctx, evt, msgAuthWrong)
	}
	person := &Person{
		ID:          evt.Sender.ID,
		DisplayName: evt.Sender.DisplayName,
		ProfileURL:  evt.Sender.ProfileURL,
		IsAdmin:     true,
	}
	if err := o.store.SavePerson(ctx, person); err != nil {
		return fmt.Errorf("failed to save person: %w", err)
	}
	log.Info().Msg("Promoted sender to admin")
	return o.reply(ctx, evt, msgAuthOK)
}

func (o *Orchestrator) handleDeauth(ctx context.Context, evt Event, cmd Command, log zerolog.Logger) error {
	target := evt.Sender.ID
	if cmd.Args != "" {
		target = NewProviderID(evt.Sender.ID.Provider, cmd.Args)
	}
	removed, err := o.store.DeletePerson(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	if !removed {
		return o.reply(ctx, evt, fmt.Sprintf(msgDeauthNothing, target.Native))
	}
	log.Info().Stringer("target", target).Msg("Removed admin rights")
	return o.reply(ctx, evt, fmt.Sprintf(msgDeauthOK, target.Native))
}
