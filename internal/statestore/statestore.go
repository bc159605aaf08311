// Package statestore persists the resume state of the active tracking
// session in a small bbolt file, so a restarted process can pick the session
// up again.
package statestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/trail.report/internal/tracking"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketName = []byte("tracking")
	stateKey   = []byte("state")
)

// Store is a tracking.StateStore backed by bbolt.
type Store struct {
	db *bolt.DB
}

var _ tracking.StateStore = (*Store)(nil)

// Open opens or creates the state file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored state, or the zero state when none was saved.
func (s *Store) Load() (tracking.PersistedState, error) {
	var state tracking.PersistedState
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get(stateKey)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &state)
	})
	if err != nil {
		return tracking.PersistedState{}, fmt.Errorf("failed to load tracking state: %w", err)
	}
	return state, nil
}

// Save replaces the stored state. The write is fsynced before Save returns.
func (s *Store) Save(state tracking.PersistedState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode tracking state: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(stateKey, raw)
	})
	if err != nil {
		return fmt.Errorf("failed to save tracking state: %w", err)
	}
	return nil
}

// Clear removes the stored state.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(stateKey)
	})
	if err != nil {
		return fmt.Errorf("failed to clear tracking state: %w", err)
	}
	return nil
}
