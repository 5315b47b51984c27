package storage

import (
	"context"
	"errors"

	"github.com/aevon-lab/tally/internal/core/tally"
)

var (
	// ErrNotFound is returned by Load when no state has ever been saved.
	ErrNotFound = errors.New("state not found")

	// ErrCorrupt is returned by Load when the persisted document cannot be
	// understood. Callers must not silently replace it.
	ErrCorrupt = errors.New("state document is corrupt")
)

// StateStore persists the whole counter document atomically.
// Implementations hold no business logic.
type StateStore interface {
	// Load returns the persisted state, ErrNotFound, or an error wrapping ErrCorrupt.
	Load(ctx context.Context) (*tally.State, error)

	// Save durably replaces the persisted state. A failed Save must leave the
	// previously saved document readable.
	Save(ctx context.Context, state *tally.State) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
