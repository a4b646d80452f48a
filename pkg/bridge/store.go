// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyCompleted = errors.New("connection already completed")
	ErrDuplicatePairing = errors.New("conversations already connected")
	ErrConflict         = errors.New("concurrent update")
	ErrPending          = errors.New("connection is still pending")
)

// Store is the persistence the orchestrator needs. Find methods return
// (nil, nil) when nothing matches. Connections are returned with both
// conversations resolved.
type Store interface {
	FindConversation(ctx context.Context, id ProviderID) (*Conversation, error)
	InsertConversation(ctx context.Context, conv *Conversation) error
	UpdateConversationTitle(ctx context.Context, id ProviderID, title string) error

	FindPerson(ctx context.Context, id ProviderID) (*Person, error)
	SavePerson(ctx context.Context, person *Person) error
	DeletePerson(ctx context.Context, id ProviderID) (bool, error)

	InsertConnection(ctx context.Context, conn *Connection) error
	FindConnection(ctx context.Context, id uuid.UUID) (*Connection, error)
	FindConnectionByToken(ctx context.Context, token string) (*Connection, error)
	FindConnectionsFor(ctx context.Context, conv ProviderID) ([]*Connection, error)
	FindCompletedBetween(ctx context.Context, a, b ProviderID) (*Connection, error)
	// CompletePairing sets the right side of a pending connection in a single
	// atomic step. It fails with ErrAlreadyCompleted, ErrDuplicatePairing,
	// ErrNotFound or ErrConflict without modifying anything.
	CompletePairing(ctx context.Context, id uuid.UUID, right ProviderID) (*Connection, error)
	// SetDirection changes the forwarding policy of a completed connection.
	// It fails with ErrPending for a connection without a right side.
	SetDirection(ctx context.Context, id uuid.UUID, dir Direction) (*Connection, error)
	DeleteConnection(ctx context.Context, id uuid.UUID) error
	PurgeExpiredPending(ctx context.Context, createdBefore time.Time) (int, error)
}

// findOrInsertConversation returns the stored conversation for the
// candidate's ID, inserting the candidate if there is none. The title is the
// only field that is refreshed.
func findOrInsertConversation(ctx context.Context, store Store, candidate Conversation) (*Conversation, error) {
	existing, err := store.FindConversation(ctx, candidate.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		conv := candidate
		if err := store.InsertConversation(ctx, &conv); err != nil {
			return nil, err
		}
		return &conv, nil
	}
	if candidate.Title != "" && existing.Title != candidate.Title {
		if err := store.UpdateConversationTitle(ctx, existing.ID, candidate.Title); err != nil {
			return nil, err
		}
		existing.Title = candidate.Title
	}
	return existing, nil
}
