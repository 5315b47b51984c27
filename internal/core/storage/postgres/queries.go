package postgres

// SQL for the single-row counter document.
// The row id is pinned to 1: one document per deployment.

const (
	// queryLoadState fetches the persisted document, if any.
	queryLoadState = `
		SELECT document
		FROM counter_state
		WHERE id = 1
	`

	// querySaveState replaces the document in one statement, so a failed
	// write leaves the previous document untouched.
	querySaveState = `
		INSERT INTO counter_state (id, version, document, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			version    = EXCLUDED.version,
			document   = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`

	// queryTableExists checks migrations have been applied.
	queryTableExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'counter_state'
		)
	`
)
