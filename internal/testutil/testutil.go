package testutil

import (
	"database/sql"
	"testing"

	"github.com/Verdenroz/champion-recap/internal/database"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// NewTestDB creates an in-memory SQLite database with all migrations applied
// through the same goose runner production uses.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)

	// each pooled connection would otherwise get its own empty in-memory db
	db.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// MustClose closes a resource and fails the test on error.
func MustClose(t *testing.T, closer interface{ Close() error }) {
	require.NoError(t, closer.Close())
}
