package davsync

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
)

// LocalFileEntry is one file of a snapshot. It is rebuilt on every pass and
// never persisted.
type LocalFileEntry struct {
	Path    string // logical, forward-slash, root-relative
	Size    int64
	SHA256  string
	AbsPath string
}

// LocalStateCollector walks a snapshot root and fingerprints every regular file.
type LocalStateCollector struct {
	ignore *SyncIgnoreList
}

func NewLocalStateCollector(ignore *SyncIgnoreList) *LocalStateCollector {
	return &LocalStateCollector{ignore: ignore}
}

// Collect returns the entries below root sorted by logical path. A missing root
// is an empty snapshot. Files whose names a restore would reject are skipped
// with a warning. Files that vanish between listing and hashing are
// skipped; any other read failure aborts with an *IOError.
func (c *LocalStateCollector) Collect(root string) ([]LocalFileEntry, error) {
	entries := make([]LocalFileEntry, 0)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return ioErr("walk", path, walkErr)
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		logicalPath := filepath.ToSlash(relPath)

		if d.IsDir() {
			if logicalPath != "." && c.ignore.ShouldIgnore(logicalPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			slog.Debug("collect skip", "reason", "not a regular file", "path", logicalPath)
			return nil
		}
		if c.ignore.ShouldIgnore(logicalPath) {
			slog.Debug("collect skip", "reason", "ignored", "path", logicalPath)
			return nil
		}
		if !validLogicalPath(logicalPath) {
			slog.Warn("collect skip", "reason", "name cannot be restored", "path", logicalPath)
			return nil
		}

		digest, size, err := fileDigestSize(path)
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("collect skip", "reason", "vanished", "path", logicalPath)
			return nil
		} else if err != nil {
			return err
		}

		entries = append(entries, LocalFileEntry{
			Path:    logicalPath,
			Size:    size,
			SHA256:  digest,
			AbsPath: path,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
