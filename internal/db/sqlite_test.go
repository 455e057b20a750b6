package db_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paralello/backend/internal/db"
)

func TestRunMigrationsAppliesInOrderOnce(t *testing.T) {
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "m/0002_notes.sql", []byte(`ALTER TABLE notes ADD COLUMN body TEXT;`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "m/0001_notes.sql", []byte(`CREATE TABLE notes (id TEXT PRIMARY KEY);`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "m/README.md", []byte(`not a migration`), 0o644))

	applied, err := db.RunMigrations(database, fs, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_notes.sql", "0002_notes.sql"}, applied)

	_, err = database.Exec(`INSERT INTO notes (id, body) VALUES ('a', 'b')`)
	require.NoError(t, err)

	applied, err = db.RunMigrations(database, fs, "m")
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestRunMigrationsRollsBackFailedFile(t *testing.T) {
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "m/0001_bad.sql", []byte(`CREATE TABLE ok (id TEXT); CREATE TABLE;`), 0o644))

	_, err = db.RunMigrations(database, fs, "m")
	require.ErrorContains(t, err, "execute migration 0001_bad.sql")

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestRunMigrationsMissingDir(t *testing.T) {
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	_, err = db.RunMigrations(database, afero.NewMemMapFs(), "nowhere")
	assert.ErrorContains(t, err, "read migrations dir")
}
