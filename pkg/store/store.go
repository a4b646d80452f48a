// Copyright 2024-2026 Aiku AI

// Package store persists conversations, admins and connections in Badger.
//
// Every record is a JSON document under a collection prefix. Lookups that are
// not by primary key go through index keys that are written in the same
// transaction as the document they point to:
//
//	conversation/<provider:native>    Conversation
//	person/<provider:native>          Person
//	connection/<uuid>                 connection document
//	token/<token>                     connection id
//	side/<provider:native>\x00<uuid>  empty, one per connection side
//	pair/<a>\x00<b>                   connection id of a completed pair, a < b
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/aiku/relaybridge/pkg/bridge"
)

// Config selects where the database lives.
type Config struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path     string `yaml:"path" validate:"required_without=InMemory"`
	InMemory bool   `yaml:"in_memory"`
}

// Store implements bridge.Store on a Badger database.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

var _ bridge.Store = (*Store)(nil)

// Open opens or creates the database.
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	log = log.With().Str("component", "store").Logger()
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{log: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	log.Debug().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("Opened database")
	return &Store{db: db, log: log}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction and maps Badger's commit
// conflict to bridge.ErrConflict.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", bridge.ErrConflict, err)
	}
	return err
}

const (
	prefixConversation = "conversation/"
	prefixPerson       = "person/"
	prefixConnection   = "connection/"
	prefixToken        = "token/"
	prefixSide         = "side/"
	prefixPair         = "pair/"
)

func conversationKey(id bridge.ProviderID) []byte {
	return []byte(prefixConversation + id.String())
}

func personKey(id bridge.ProviderID) []byte {
	return []byte(prefixPerson + id.String())
}

// getJSON loads a document. It reports false if the key is absent.
func getJSON(txn *badger.Txn, key []byte, into any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, into)
	})
	if err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func setJSON(txn *badger.Txn, key []byte, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// badgerLogger routes Badger's internal logging into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msgf(format, args...)
}
