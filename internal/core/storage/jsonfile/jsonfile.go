// Package jsonfile stores the counter document as a single JSON file.
package jsonfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aevon-lab/tally/internal/core/storage"
	"github.com/aevon-lab/tally/internal/core/tally"
	"github.com/natefinch/atomic"
)

// Store implements storage.StateStore on the local file system.
// Saves write a temporary file in the same directory and rename it over the
// target, so a crash never leaves a truncated document behind.
type Store struct {
	path  string
	nowFn func() time.Time
}

// Open returns a store backed by path. The parent directory is created
// if it does not exist; the file itself is created on first Save.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonfile: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: failed to create directory for %s: %w", path, err)
	}
	return &Store{path: path, nowFn: time.Now}, nil
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(ctx context.Context) (*tally.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jsonfile: failed to read %s: %w", s.path, err)
	}

	state, err := storage.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("jsonfile: %s: %w", s.path, err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state *tally.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := storage.EncodeDocument(state)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("jsonfile: failed to write %s: %w", s.path, err)
	}
	return nil
}

// Ping verifies the document directory is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("jsonfile: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

// Quarantine moves an unreadable document aside so a fresh state can be
// written without destroying it. A missing file is not an error.
func (s *Store) Quarantine() error {
	target := fmt.Sprintf("%s.corrupt-%d", s.path, s.nowFn().Unix())
	if err := os.Rename(s.path, target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("jsonfile: failed to quarantine %s: %w", s.path, err)
	}
	slog.Warn("[JSONFile] Corrupt state document moved aside", "from", s.path, "to", target)
	return nil
}
