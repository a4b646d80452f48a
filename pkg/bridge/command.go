// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Command is a parsed command line. HasArgs is false when the body had no
// splitter at all, Args may still be empty when it had one.
type Command struct {
	Name    string
	Args    string
	HasArgs bool
}

// ParseCommand splits a command body on the first whitespace or underscore,
// so both "/disconnect 42" and "/disconnect_42" address the same command.
// Trailing whitespace counts as a splitter: "/token " has empty Args.
func ParseCommand(body string) Command {
	body = strings.TrimLeftFunc(body, unicode.IsSpace)
	idx := strings.IndexFunc(body, isCommandSplitter)
	if idx < 0 {
		return Command{Name: body}
	}
	_, size := utf8.DecodeRuneInString(body[idx:])
	return Command{
		Name:    body[:idx],
		Args:    strings.TrimSpace(body[idx+size:]),
		HasArgs: true,
	}
}

func isCommandSplitter(r rune) bool {
	return r == '_' || unicode.IsSpace(r)
}

type commandFunc func(ctx context.Context, evt Event, cmd Command, log zerolog.Logger) error

type commandHandler struct {
	adminOnly bool
	fn        commandFunc
}

func (o *Orchestrator) registerCommands() {
	o.commands = map[string]commandHandler{
		"/start":   {fn: o.handleStart},
		"/auth":    {fn: o.handleAuth},
		"/connect": {fn: o.handleConnect},

		"/deauth":     {adminOnly: true, fn: o.handleDeauth},
		"/token":      {adminOnly: true, fn: o.handleToken},
		"/list":       {adminOnly: true, fn: o.handleList},
		"/disconnect": {adminOnly: true, fn: o.handleDisconnect},
	}
}

// dispatch runs the handler for a command event. Errors and panics from a
// handler end here: they are logged under a random id and the user only
// gets the id.
func (o *Orchestrator) dispatch(ctx context.Context, evt Event) {
	cmd := ParseCommand(evt.Body)
	log := o.log.With().
		Str("command", cmd.Name).
		Stringer("conversation", evt.Conversation.ID).
		Stringer("sender", evt.Sender.ID).
		Logger()

	handler, ok := o.commands[cmd.Name]
	if !ok {
		log.Debug().Msg("Ignoring unknown command")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			o.reportError(ctx, evt, log, fmt.Errorf("panic in command handler: %v", r))
		}
	}()

	if handler.adminOnly {
		allowed, err := o.ensureHasAdminRights(ctx, evt, log)
		if err != nil {
			o.reportError(ctx, evt, log, err)
			return
		}
		if !allowed {
			return
		}
	}

	if err := handler.fn(ctx, evt, cmd, log); err != nil {
		o.reportError(ctx, evt, log, err)
	}
}

func (o *Orchestrator) reportError(ctx context.Context, evt Event, log zerolog.Logger, err error) {
	errorID := uuid.NewString()
	log.Error().Err(err).Str("error_id", errorID).Msg("Command handler failed")
	if sendErr := o.reply(ctx, evt, fmt.Sprintf(msgInternalError, errorID)); sendErr != nil {
		log.Warn().Err(sendErr).Str("error_id", errorID).Msg("Failed to send error report")
	}
}

// reply sends text back to the conversation the event came from.
func (o *Orchestrator) reply(ctx context.Context, evt Event, text string) error {
	if err := o.registry.Send(ctx, evt.Conversation.ID, text); err != nil {
		return fmt.Errorf("failed to reply to %s: %w", evt.Conversation.ID, err)
	}
	return nil
}

func (o *Orchestrator) handleStart(ctx context.Context, evt Event, _ Command, _ zerolog.Logger) error {
	return o.reply(ctx, evt, msgStart)
}
