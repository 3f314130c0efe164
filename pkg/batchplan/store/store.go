// Package store provides the optional persistence layer around the
// planner: a badger-backed store for flat serialized decisions and an
// in-memory LRU cache for execution results. Neither sits in the
// decision hot path, and every storage error degrades to a cache miss
// rather than aborting planning.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// ErrNotFound is returned when a record doesn't exist.
var ErrNotFound = errors.New("record not found")

// keyPrefix namespaces decision records inside the badger keyspace.
const keyPrefix = "decision/"

// Store persists planner decisions with their provenance.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening decision store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutDecision stores a decision under key, JSON-encoded flat.
func (s *Store) PutDecision(key string, d types.Decision) error {
	value, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding decision: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), value)
	})
}

// GetDecision retrieves a decision by key.
func (s *Store) GetDecision(key string) (types.Decision, error) {
	var d types.Decision

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &d)
		})
	})
	if err != nil {
		return types.Decision{}, err
	}
	return d, nil
}

// Delete removes a decision.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

// Keys lists all stored decision keys.
func (s *Store) Keys() ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DecisionCache adapts a Store to the planner's cache interface, where
// a missing record is (zero, false, nil) rather than an error.
type DecisionCache struct {
	store *Store
}

// NewDecisionCache wraps a store for use by the planner.
func NewDecisionCache(s *Store) *DecisionCache {
	return &DecisionCache{store: s}
}

// Get returns the decision under key, or ok=false on a miss.
func (c *DecisionCache) Get(key string) (types.Decision, bool, error) {
	d, err := c.store.GetDecision(key)
	if errors.Is(err, ErrNotFound) {
		return types.Decision{}, false, nil
	}
	if err != nil {
		return types.Decision{}, false, err
	}
	return d, true, nil
}

// Put stores the decision under key.
func (c *DecisionCache) Put(key string, d types.Decision) error {
	return c.store.PutDecision(key, d)
}
