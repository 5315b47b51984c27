package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aevon-lab/tally/internal/core/storage"
	"github.com/aevon-lab/tally/internal/core/tally"
	"github.com/stretchr/testify/require"
)

func TestNewStore_MissingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryTableExists)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err = NewStore(db)
	require.ErrorContains(t, err, "did you run migrations?")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStore_PreparesStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryTableExists)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectPrepare(regexp.QuoteMeta(queryLoadState))
	mock.ExpectPrepare(regexp.QuoteMeta(querySaveState))

	store, err := NewStore(db)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Load(t *testing.T) {
	tests := []struct {
		name       string
		mockResult func(mock sqlmock.Sqlmock)
		assertions func(t *testing.T, st *tally.State, err error)
	}{
		{
			name: "decodes document",
			mockResult: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(queryLoadState)).
					WillReturnRows(sqlmock.NewRows([]string{"document"}).
						AddRow([]byte(`{"version": 1, "allTime": {"a": 2}, "currentPeriod": "W3", "weekIndex": 3}`)))
			},
			assertions: func(t *testing.T, st *tally.State, err error) {
				require.NoError(t, err)
				require.Equal(t, int64(2), st.AllTime["a"])
				require.Equal(t, 3, st.WeekIndex)
			},
		},
		{
			name: "no row maps to ErrNotFound",
			mockResult: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(queryLoadState)).
					WillReturnRows(sqlmock.NewRows([]string{"document"}))
			},
			assertions: func(t *testing.T, st *tally.State, err error) {
				require.ErrorIs(t, err, storage.ErrNotFound)
				require.Nil(t, st)
			},
		},
		{
			name: "bad document maps to ErrCorrupt",
			mockResult: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(queryLoadState)).
					WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow([]byte(`{"version": 9}`)))
			},
			assertions: func(t *testing.T, st *tally.State, err error) {
				require.ErrorIs(t, err, storage.ErrCorrupt)
			},
		},
		{
			name: "driver error is wrapped",
			mockResult: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(queryLoadState)).
					WillReturnError(errors.New("connection reset"))
			},
			assertions: func(t *testing.T, st *tally.State, err error) {
				require.ErrorContains(t, err, "failed to load state")
				require.NotErrorIs(t, err, storage.ErrNotFound)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, mock, db := newMockStore(t)
			defer db.Close()

			tc.mockResult(mock)
			st, err := store.Load(context.Background())
			tc.assertions(t, st, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_Save(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

	st := tally.New("2025-W27", 0)
	st.AllTime["a"] = 1
	st.Current["a"] = 1
	st.History["2025-W27"] = tally.Counts{"a": 1}
	document, err := storage.EncodeDocument(st)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()
		store.nowFn = func() time.Time { return now }

		mock.ExpectExec(regexp.QuoteMeta(querySaveState)).
			WithArgs(storage.DocumentVersion, document, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Save(context.Background(), st))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure is reported", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()
		store.nowFn = func() time.Time { return now }

		mock.ExpectExec(regexp.QuoteMeta(querySaveState)).
			WithArgs(storage.DocumentVersion, document, now).
			WillReturnError(errors.New("disk full"))

		err := store.Save(context.Background(), st)
		require.ErrorContains(t, err, "failed to save state")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := &Store{
		db:       db,
		stmtLoad: mustPrepareStmt(t, db, mock, queryLoadState),
		stmtSave: mustPrepareStmt(t, db, mock, querySaveState),
		nowFn:    time.Now,
	}
	return store, mock, db
}

func mustPrepareStmt(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock, query string) *sql.Stmt {
	t.Helper()

	mock.ExpectPrepare(regexp.QuoteMeta(query))
	stmt, err := db.Prepare(query)
	require.NoError(t, err)

	return stmt
}
