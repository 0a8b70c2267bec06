package db

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
)

var (
	ErrDatabaseClosed = errors.New("db: database is closed")
)

// AppDatabase is the application's live database handle. The sync engine takes
// exclusive access by calling Close and always hands it back with Reopen.
type AppDatabase struct {
	path   string
	schema string
	opts   []SqliteOption

	mu sync.RWMutex
	db *sqlx.DB
}

// OpenAppDatabase opens the database at path and applies schema (which may be
// empty). The same schema is re-applied on every Reopen, so it must be idempotent.
func OpenAppDatabase(path, schema string, opts ...SqliteOption) (*AppDatabase, error) {
	a := &AppDatabase{
		path:   path,
		schema: schema,
		opts:   append([]SqliteOption{WithPath(path)}, opts...),
	}
	if err := a.Reopen(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *AppDatabase) Path() string {
	return a.path
}

// DB returns the current handle. Callers must not hold on to it across a sync
// pass; fetch it again after the pass completes.
func (a *AppDatabase) DB() (*sqlx.DB, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, ErrDatabaseClosed
	}
	return a.db, nil
}

// Close closes the handle. Closing an already closed database is a no-op.
func (a *AppDatabase) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", a.path, err)
	}
	slog.Debug("app database closed", "path", a.path)
	return nil
}

// Reopen opens the database again. An open handle is closed first.
func (a *AppDatabase) Reopen() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("app database close before reopen", "path", a.path, "error", err)
		}
		a.db = nil
	}

	db, err := NewSqliteDB(a.opts...)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.path, err)
	}
	if a.schema != "" {
		if _, err := db.Exec(a.schema); err != nil {
			db.Close()
			return fmt.Errorf("apply schema %s: %w", a.path, err)
		}
	}
	a.db = db
	slog.Debug("app database opened", "path", a.path)
	return nil
}
