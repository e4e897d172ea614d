package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/gazemap-backend-go/internal/logger"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Logger: logger.NullLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestOpen_AppliesMigrations(t *testing.T) {
	conn := openTestDB(t)

	for _, table := range []string{"sessions", "gaze_samples", "screenshots", "migrations"} {
		var name string
		err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	conn := openTestDB(t)

	require.NoError(t, NewMigrationManager(conn, logger.NullLogger()).RunMigrations())

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	conn := openTestDB(t)
	boom := errors.New("boom")

	err := Transaction(conn, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO sessions (id, url, analysis_time, captured_at, status, created_at, updated_at)
			VALUES ('s1', 'https://example.com', 30, 0, 'recording', 0, 0)`)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count))
	assert.Equal(t, 0, count)
}
