// Package memory provides an in-process StateStore.
// Useful for testing and for ephemeral deployments.
package memory

import (
	"context"
	"sync"

	"github.com/aevon-lab/tally/internal/core/storage"
	"github.com/aevon-lab/tally/internal/core/tally"
)

// Store keeps a deep copy of the last saved state.
type Store struct {
	mu      sync.RWMutex
	state   *tally.State
	saveErr error
	saves   int
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{}
}

// NewStoreWith creates a store pre-seeded with state.
func NewStoreWith(state *tally.State) *Store {
	return &Store{state: state.Clone()}
}

func (s *Store) Load(ctx context.Context) (*tally.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}
	return s.state.Clone(), nil
}

func (s *Store) Save(ctx context.Context, state *tally.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	s.state = state.Clone()
	s.saves++
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// FailSaves makes every subsequent Save return err. Pass nil to recover.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns how many saves have succeeded.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
