// Package workspace lays out the directories davsync works in and guards them
// with a file lock so only one process syncs a data directory at a time.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dogcuisine/davsync/internal/utils"
	"github.com/gofrs/flock"
)

const (
	metadataDir    = ".davsync"
	snapshotDir    = "sync_incremental"
	restoreDir     = "sync_incremental_restore"
	lockFile       = "davsync.lock"
	journalFile    = "journal.db"
	configFile     = "config.json"
	logFile        = "davsync.log"
	ignoreFileName = "davsyncignore"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace describes where the live data lives (database file and images
// directory) and where davsync keeps its own scratch and metadata files.
type Workspace struct {
	Root         string
	DatabasePath string
	ImagesDir    string
	MetadataDir  string
	SnapshotDir  string
	RestoreDir   string
	JournalPath  string
	ConfigPath   string
	LogPath      string
	IgnorePath   string

	flock *flock.Flock
}

// NewWorkspace resolves the layout below root. databasePath and imagesDir may be
// relative to root; empty values default to root/app.db and root/images.
func NewWorkspace(root, databasePath, imagesDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}

	if databasePath == "" {
		databasePath = "app.db"
	}
	if imagesDir == "" {
		imagesDir = "images"
	}

	meta := filepath.Join(root, metadataDir)
	cache := filepath.Join(meta, "cache")

	return &Workspace{
		Root:         root,
		DatabasePath: under(root, databasePath),
		ImagesDir:    under(root, imagesDir),
		MetadataDir:  meta,
		SnapshotDir:  filepath.Join(cache, snapshotDir),
		RestoreDir:   filepath.Join(cache, restoreDir),
		JournalPath:  filepath.Join(meta, journalFile),
		ConfigPath:   filepath.Join(meta, configFile),
		LogPath:      filepath.Join(meta, "logs", logFile),
		IgnorePath:   filepath.Join(root, ignoreFileName),
		flock:        flock.New(filepath.Join(meta, lockFile)),
	}, nil
}

func under(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// Setup creates the metadata directory and takes the workspace lock.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	for _, dir := range []string{w.MetadataDir, filepath.Dir(w.DatabasePath), w.ImagesDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	slog.Info("workspace", "root", w.Root, "database", w.DatabasePath, "images", w.ImagesDir)
	return nil
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// only the holder removes the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}
