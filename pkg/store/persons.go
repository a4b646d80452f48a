// Copyright 2024-2026 Aiku AI

package store

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/aiku/relaybridge/pkg/bridge"
)

func (s *Store) FindPerson(_ context.Context, id bridge.ProviderID) (*bridge.Person, error) {
	var person bridge.Person
	var found bool
	err := s.db.View(func(txn *badger.Txn) (err error) {
		found, err = getJSON(txn, personKey(id), &person)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &person, nil
}

func (s *Store) SavePerson(_ context.Context, person *bridge.Person) error {
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, personKey(person.ID), person)
	})
}

func (s *Store) DeletePerson(_ context.Context, id bridge.ProviderID) (bool, error) {
	var removed bool
	err := s.update(func(txn *badger.Txn) error {
		found, err := exists(txn, personKey(id))
		if err != nil || !found {
			return err
		}
		removed = true
		return txn.Delete(personKey(id))
	})
	return removed, err
}
