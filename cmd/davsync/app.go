package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/dogcuisine/davsync/internal/davsync"
	"github.com/dogcuisine/davsync/internal/db"
	"github.com/dogcuisine/davsync/internal/workspace"
)

var appConfig *config.AppConfig

// app is everything a sync command needs, opened against one workspace.
type app struct {
	ws         *workspace.Workspace
	db         *db.AppDatabase
	journal    *davsync.SyncJournal
	ignore     *davsync.SyncIgnoreList
	engine     *davsync.SyncEngine
	configPath string
}

func newWorkspace() (*workspace.Workspace, string, error) {
	ws, err := workspace.NewWorkspace(appConfig.DataDir, appConfig.Database, appConfig.ImagesDir)
	if err != nil {
		return nil, "", err
	}
	configPath := appConfig.ConfigPath
	if configPath == "" {
		configPath = ws.ConfigPath
	}
	return ws, configPath, nil
}

// openApp locks the workspace and opens the database, journal and engine.
func openApp() (*app, error) {
	ws, configPath, err := newWorkspace()
	if err != nil {
		return nil, err
	}
	if err := ws.Setup(); err != nil {
		if errors.Is(err, workspace.ErrWorkspaceLocked) {
			return nil, fmt.Errorf("%w: is another davsync running on %s?", err, ws.Root)
		}
		return nil, err
	}

	a := &app{ws: ws, configPath: configPath}
	if err := a.open(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open() error {
	if err := setupFileLogging(a.ws.LogPath); err != nil {
		return err
	}

	appDB, err := db.OpenAppDatabase(a.ws.DatabasePath, "")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = appDB

	a.journal = davsync.NewSyncJournal(a.ws.JournalPath)
	if err := a.journal.Open(); err != nil {
		return err
	}

	a.ignore = davsync.LoadSyncIgnoreList(a.ws.IgnorePath)

	engine, err := davsync.NewSyncEngine(&davsync.EngineConfig{
		Transport:   davsync.NewTransport(),
		Database:    a.db,
		ImagesDir:   a.ws.ImagesDir,
		SnapshotDir: a.ws.SnapshotDir,
		RestoreDir:  a.ws.RestoreDir,
		Ignore:      a.ignore,
		Journal:     a.journal,
	})
	if err != nil {
		return err
	}
	a.engine = engine
	return nil
}

// loadSyncConfig is re-read before every pass.
func (a *app) loadSyncConfig() (*config.SyncConfig, error) {
	return config.Load(a.configPath)
}

// watchFilter drops events the sync itself causes and paths that never sync.
// running reports whether a pass is in flight; database file events during a
// pass come from the snapshot's close and reopen.
func (a *app) watchFilter(running func() bool) davsync.FilterCallback {
	dbFile := filepath.Base(a.ws.DatabasePath)
	dbDir := filepath.Dir(a.ws.DatabasePath)

	return func(path string) bool {
		if path == a.ws.MetadataDir || strings.HasPrefix(path, a.ws.MetadataDir+string(filepath.Separator)) {
			return true
		}

		if filepath.Dir(path) == dbDir && strings.HasPrefix(filepath.Base(path), dbFile) {
			return running()
		}

		rel, err := filepath.Rel(a.ws.ImagesDir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
		return a.ignore.ShouldIgnore("images/" + filepath.ToSlash(rel))
	}
}

func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			slog.Warn("close journal", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("close database", "error", err)
		}
	}
	if err := a.ws.Unlock(); err != nil {
		slog.Warn("unlock workspace", "error", err)
	}
}
