// Package sqlite stores the counter document in a single-row SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/tally/internal/core/storage"
	"github.com/aevon-lab/tally/internal/core/tally"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const (
	queryLoadState = `SELECT document FROM counter_state WHERE id = 1`

	querySaveState = `
		INSERT INTO counter_state (id, version, document, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			version    = excluded.version,
			document   = excluded.document,
			updated_at = excluded.updated_at
	`
)

// Store implements storage.StateStore on SQLite.
type Store struct {
	db    *sql.DB
	nowFn func() time.Time
}

// Open creates or opens the database at path and applies the schema.
//
// The database is configured with:
//   - WAL mode so readers (tallyctl) do not block the service
//   - FULL synchronous mode; every Save must survive power loss
//   - 5-second busy timeout for lock contention
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db: db,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (*tally.State, error) {
	var document string
	err := s.db.QueryRowContext(ctx, queryLoadState).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load state: %w", err)
	}

	state, err := storage.DecodeDocument([]byte(document))
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state *tally.State) error {
	document, err := storage.EncodeDocument(state)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, querySaveState,
		storage.DocumentVersion,
		string(document),
		s.nowFn().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save state: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
