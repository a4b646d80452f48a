// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/aiku/relaybridge/pkg/bridge"
)

func (s *Store) FindConversation(_ context.Context, id bridge.ProviderID) (*bridge.Conversation, error) {
	var conv bridge.Conversation
	var found bool
	err := s.db.View(func(txn *badger.Txn) (err error) {
		found, err = getJSON(txn, conversationKey(id), &conv)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &conv, nil
}

// InsertConversation stores a conversation. Inserting an ID twice replaces
// the title.
func (s *Store) InsertConversation(_ context.Context, conv *bridge.Conversation) error {
	if conv.ID.IsZero() {
		return errors.New("conversation id is incomplete")
	}
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, conversationKey(conv.ID), conv)
	})
}

func (s *Store) UpdateConversationTitle(_ context.Context, id bridge.ProviderID, title string) error {
	return s.update(func(txn *badger.Txn) error {
		var conv bridge.Conversation
		found, err := getJSON(txn, conversationKey(id), &conv)
		if err != nil {
			return err
		} else if !found {
			return fmt.Errorf("conversation %s: %w", id, bridge.ErrNotFound)
		}
		conv.Title = title
		return setJSON(txn, conversationKey(id), &conv)
	})
}

// loadConversation resolves a reference. Missing conversations degrade to an
// untitled one so a connection stays readable.
func loadConversation(txn *badger.Txn, id bridge.ProviderID) (*bridge.Conversation, error) {
	conv := &bridge.Conversation{ID: id}
	if _, err := getJSON(txn, conversationKey(id), conv); err != nil {
		return nil, err
	}
	return conv, nil
}
