package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDB_Memory_Defaults(t *testing.T) {
	database, err := NewSqliteDB()
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
}

func TestNewSqliteDB_File_CreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	database, err := NewSqliteDB(WithPath(dbPath), WithMaxOpenConns(1))
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

const recipeSchema = `CREATE TABLE IF NOT EXISTS recipes (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`

func TestAppDatabase_CloseReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "app.db")

	app, err := OpenAppDatabase(dbPath, recipeSchema)
	require.NoError(t, err)
	defer app.Close()

	handle, err := app.DB()
	require.NoError(t, err)
	_, err = handle.Exec("INSERT INTO recipes (name) VALUES (?)", "dumplings")
	require.NoError(t, err)

	require.NoError(t, app.Close())
	require.NoError(t, app.Close(), "double close is a no-op")

	_, err = app.DB()
	assert.ErrorIs(t, err, ErrDatabaseClosed)

	require.NoError(t, app.Reopen())
	handle, err = app.DB()
	require.NoError(t, err)

	var name string
	require.NoError(t, handle.Get(&name, "SELECT name FROM recipes LIMIT 1"))
	assert.Equal(t, "dumplings", name)
	assert.Equal(t, dbPath, app.Path())
}

func TestNewSqliteDB_Pragmas(t *testing.T) {
	defaults, err := NewSqliteDB(WithMaxOpenConns(1))
	require.NoError(t, err)
	defer defaults.Close()

	var fk int
	require.NoError(t, defaults.Get(&fk, "PRAGMA foreign_keys;"))
	assert.Equal(t, 1, fk)

	custom, err := NewSqliteDB(
		WithPragmas("PRAGMA foreign_keys=OFF;"),
		WithMaxOpenConns(1),
		WithMaxIdleConns(1),
	)
	require.NoError(t, err)
	defer custom.Close()

	require.NoError(t, custom.Get(&fk, "PRAGMA foreign_keys;"))
	assert.Equal(t, 0, fk)
	assert.Equal(t, 1, custom.Stats().MaxOpenConnections)
}
