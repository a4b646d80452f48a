// Copyright 2024-2026 Aiku AI

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/aiku/relaybridge/pkg/bridge"
)

// connectionDoc is the stored form of a connection. Sides are references;
// reads resolve them to full conversations.
type connectionDoc struct {
	ID        uuid.UUID          `json:"id"`
	Token     string             `json:"token,omitempty"`
	Left      bridge.ProviderID  `json:"left"`
	Right     *bridge.ProviderID `json:"right,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Direction bridge.Direction   `json:"direction"`
}

func connectionKey(id uuid.UUID) []byte {
	return []byte(prefixConnection + id.String())
}

func tokenKey(token string) []byte {
	return []byte(prefixToken + token)
}

func sidePrefix(conv bridge.ProviderID) []byte {
	return []byte(prefixSide + conv.String() + "\x00")
}

func sideKey(conv bridge.ProviderID, id uuid.UUID) []byte {
	return append(sidePrefix(conv), id.String()...)
}

// pairKey is the same for (a, b) and (b, a). Native IDs never contain NUL,
// so the separator cannot be forged by either side.
func pairKey(a, b bridge.ProviderID) []byte {
	as, bs := a.String(), b.String()
	if bs < as {
		as, bs = bs, as
	}
	return []byte(prefixPair + as + "\x00" + bs)
}

func loadConnectionDoc(txn *badger.Txn, id uuid.UUID) (*connectionDoc, error) {
	var doc connectionDoc
	found, err := getJSON(txn, connectionKey(id), &doc)
	if err != nil || !found {
		return nil, err
	}
	return &doc, nil
}

func resolveConnection(txn *badger.Txn, doc *connectionDoc) (*bridge.Connection, error) {
	left, err := loadConversation(txn, doc.Left)
	if err != nil {
		return nil, err
	}
	conn := &bridge.Connection{
		ID:        doc.ID,
		Token:     doc.Token,
		Left:      left,
		CreatedAt: doc.CreatedAt,
		Direction: doc.Direction,
	}
	if doc.Right != nil {
		conn.Right, err = loadConversation(txn, *doc.Right)
		if err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// putConnection writes the document and every index entry it implies.
func putConnection(txn *badger.Txn, doc *connectionDoc) error {
	if err := setJSON(txn, connectionKey(doc.ID), doc); err != nil {
		return err
	}
	if doc.Token != "" {
		if err := txn.Set(tokenKey(doc.Token), []byte(doc.ID.String())); err != nil {
			return err
		}
	}
	if err := txn.Set(sideKey(doc.Left, doc.ID), nil); err != nil {
		return err
	}
	if doc.Right != nil {
		if err := txn.Set(sideKey(*doc.Right, doc.ID), nil); err != nil {
			return err
		}
		if err := txn.Set(pairKey(doc.Left, *doc.Right), []byte(doc.ID.String())); err != nil {
			return err
		}
	}
	return nil
}

// removeConnection deletes the document and its index entries. The token
// index is only removed while it still points at this connection.
func removeConnection(txn *badger.Txn, doc *connectionDoc) error {
	if err := txn.Delete(connectionKey(doc.ID)); err != nil {
		return err
	}
	if doc.Token != "" {
		owner, err := readID(txn, tokenKey(doc.Token))
		if err != nil {
			return err
		}
		if owner == doc.ID {
			if err := txn.Delete(tokenKey(doc.Token)); err != nil {
				return err
			}
		}
	}
	if err := txn.Delete(sideKey(doc.Left, doc.ID)); err != nil {
		return err
	}
	if doc.Right != nil {
		if err := txn.Delete(sideKey(*doc.Right, doc.ID)); err != nil {
			return err
		}
		return txn.Delete(pairKey(doc.Left, *doc.Right))
	}
	return nil
}

// readID reads an index value. A missing key yields uuid.Nil.
func readID(txn *badger.Txn, key []byte) (uuid.UUID, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return uuid.Nil, nil
	} else if err != nil {
		return uuid.Nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.ParseBytes(val)
}

func (s *Store) InsertConnection(_ context.Context, conn *bridge.Connection) error {
	if conn.Left == nil {
		return errors.New("connection has no left side")
	}
	doc := &connectionDoc{
		ID:        conn.ID,
		Token:     conn.Token,
		Left:      conn.Left.ID,
		CreatedAt: conn.CreatedAt,
		Direction: conn.Direction,
	}
	if conn.Right != nil {
		right := conn.Right.ID
		doc.Right = &right
	}
	return s.update(func(txn *badger.Txn) error {
		if found, err := exists(txn, connectionKey(doc.ID)); err != nil {
			return err
		} else if found {
			return fmt.Errorf("connection %s already exists", doc.ID)
		}
		if doc.Token != "" {
			if found, err := exists(txn, tokenKey(doc.Token)); err != nil {
				return err
			} else if found {
				return errors.New("token is already in use")
			}
		}
		return putConnection(txn, doc)
	})
}

func (s *Store) FindConnection(_ context.Context, id uuid.UUID) (conn *bridge.Connection, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		conn, err = findConnection(txn, id)
		return err
	})
	return
}

func findConnection(txn *badger.Txn, id uuid.UUID) (*bridge.Connection, error) {
	doc, err := loadConnectionDoc(txn, id)
	if err != nil || doc == nil {
		return nil, err
	}
	return resolveConnection(txn, doc)
}

func (s *Store) FindConnectionByToken(_ context.Context, token string) (conn *bridge.Connection, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		id, err := readID(txn, tokenKey(token))
		if err != nil || id == uuid.Nil {
			return err
		}
		conn, err = findConnection(txn, id)
		return err
	})
	return
}

func (s *Store) FindConnectionsFor(_ context.Context, conv bridge.ProviderID) (conns []*bridge.Connection, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		prefix := sidePrefix(conv)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		var ids []uuid.UUID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw := bytes.TrimPrefix(it.Item().Key(), prefix)
			id, err := uuid.ParseBytes(raw)
			if err != nil {
				it.Close()
				return fmt.Errorf("corrupt side index entry %q: %w", raw, err)
			}
			ids = append(ids, id)
		}
		it.Close()

		for _, id := range ids {
			conn, err := findConnection(txn, id)
			if err != nil {
				return err
			} else if conn != nil {
				conns = append(conns, conn)
			}
		}
		return nil
	})
	return
}

func (s *Store) FindCompletedBetween(_ context.Context, a, b bridge.ProviderID) (conn *bridge.Connection, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		id, err := readID(txn, pairKey(a, b))
		if err != nil || id == uuid.Nil {
			return err
		}
		conn, err = findConnection(txn, id)
		return err
	})
	return
}

// CompletePairing reads the pending document and the pair index and writes
// both in one transaction. Two transactions racing on either key conflict at
// commit and the loser gets bridge.ErrConflict.
func (s *Store) CompletePairing(_ context.Context, id uuid.UUID, right bridge.ProviderID) (conn *bridge.Connection, err error) {
	err = s.update(func(txn *badger.Txn) error {
		doc, err := loadConnectionDoc(txn, id)
		if err != nil {
			return err
		} else if doc == nil {
			return fmt.Errorf("connection %s: %w", id, bridge.ErrNotFound)
		} else if doc.Right != nil {
			return bridge.ErrAlreadyCompleted
		}
		if found, err := exists(txn, pairKey(doc.Left, right)); err != nil {
			return err
		} else if found {
			return bridge.ErrDuplicatePairing
		}

		doc.Right = &right
		doc.Direction = bridge.DirectionTwoWay
		if err := putConnection(txn, doc); err != nil {
			return err
		}
		conn, err = resolveConnection(txn, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug().Stringer("connection_id", id).Stringer("right", right).Msg("Completed pairing")
	return conn, nil
}

func (s *Store) SetDirection(_ context.Context, id uuid.UUID, dir bridge.Direction) (conn *bridge.Connection, err error) {
	err = s.update(func(txn *badger.Txn) error {
		doc, err := loadConnectionDoc(txn, id)
		if err != nil {
			return err
		} else if doc == nil {
			return fmt.Errorf("connection %s: %w", id, bridge.ErrNotFound)
		} else if doc.Right == nil {
			return bridge.ErrPending
		}
		doc.Direction = dir
		if err := setJSON(txn, connectionKey(id), doc); err != nil {
			return err
		}
		conn, err = resolveConnection(txn, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Store) DeleteConnection(_ context.Context, id uuid.UUID) error {
	return s.update(func(txn *badger.Txn) error {
		doc, err := loadConnectionDoc(txn, id)
		if err != nil {
			return err
		} else if doc == nil {
			return fmt.Errorf("connection %s: %w", id, bridge.ErrNotFound)
		}
		return removeConnection(txn, doc)
	})
}

// PurgeExpiredPending removes pending connections created before the cutoff,
// together with their token index entries.
func (s *Store) PurgeExpiredPending(_ context.Context, createdBefore time.Time) (int, error) {
	var purged int
	err := s.update(func(txn *badger.Txn) error {
		purged = 0
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixConnection)
		it := txn.NewIterator(opts)
		var expired []*connectionDoc
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var doc connectionDoc
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			})
			if err != nil {
				key := item.KeyCopy(nil)
				it.Close()
				return fmt.Errorf("failed to decode %s: %w", key, err)
			}
			if doc.Right == nil && doc.CreatedAt.Before(createdBefore) {
				expired = append(expired, &doc)
			}
		}
		it.Close()

		for _, doc := range expired {
			if err := removeConnection(txn, doc); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}
