package davsync

import (
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/dogcuisine/davsync/internal/utils"
)

const (
	snapshotDBDir     = "db"
	snapshotImagesDir = "images"
)

// sqlite write-ahead side files that belong to a database snapshot
var databaseSideSuffixes = []string{"", "-wal", "-shm"}

// Database is the live database handle owned by the application. The engine
// takes exclusive access with Close and always returns it with Reopen.
type Database interface {
	Path() string
	Close() error
	Reopen() error
}

// databaseFiles returns the main file and its side files, in that order.
func databaseFiles(mainPath string) []string {
	files := make([]string, 0, len(databaseSideSuffixes))
	for _, suffix := range databaseSideSuffixes {
		files = append(files, mainPath+suffix)
	}
	return files
}

// Snapshotter produces a closed, consistent copy of local state:
//
//	<root>/db/<name>, <name>-wal, <name>-shm
//	<root>/images/...
type Snapshotter struct {
	db        Database
	imagesDir string
}

func NewSnapshotter(db Database, imagesDir string) *Snapshotter {
	return &Snapshotter{db: db, imagesDir: imagesDir}
}

// Take recreates root and fills it with the current local state.
func (s *Snapshotter) Take(root string) error {
	if err := utils.RecreateDir(root); err != nil {
		return ioErr("recreate", root, err)
	}

	if err := s.copyDatabase(filepath.Join(root, snapshotDBDir)); err != nil {
		return err
	}

	// images are not touched by the database handle, so link them after the
	// handle is back to keep the closed window short
	if err := utils.LinkTree(s.imagesDir, filepath.Join(root, snapshotImagesDir)); err != nil {
		return ioErr("snapshot images", s.imagesDir, err)
	}
	return nil
}

// copyDatabase copies the database files while the handle is closed. Copying
// files that are open for write can produce a torn, unrestorable copy.
func (s *Snapshotter) copyDatabase(dst string) (err error) {
	// reopen on every exit path, including a failed Close
	defer func() {
		if rerr := s.db.Reopen(); rerr != nil {
			err = errors.Join(err, ioErr("reopen database", s.db.Path(), rerr))
		}
	}()

	if err := s.db.Close(); err != nil {
		return ioErr("close database", s.db.Path(), err)
	}

	mainPath := s.db.Path()
	for _, src := range databaseFiles(mainPath) {
		target := filepath.Join(dst, filepath.Base(src))
		copied, err := utils.CopyFileIfExists(src, target)
		if err != nil {
			return ioErr("snapshot database", src, err)
		}
		if copied {
			slog.Debug("snapshot", "file", filepath.Base(src))
		}
	}
	return nil
}
