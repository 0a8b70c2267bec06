package davsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/dogcuisine/davsync/internal/utils"
	"github.com/dustin/go-humanize"
)

// restore downloads and verifies every manifest entry into the staging dir and
// only then swaps it in. Until the swap, local state is never touched.
func (se *SyncEngine) restore(ctx context.Context, cfg *config.SyncConfig, passID string) (*RestoreResult, error) {
	auth := AuthFromConfig(cfg)

	remote, err := FetchManifest(ctx, se.transport, cfg.BaseURL, auth)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	if !remote.Found {
		return nil, ErrNoRemoteManifest
	}
	manifest := remote.Manifest

	// reject the whole manifest before the first write if any path is unsafe
	targets := make([]string, len(manifest.Files))
	for i, entry := range manifest.Files {
		target, err := StagingPath(se.restoreDir, entry.Path)
		if err != nil {
			return nil, err
		}
		targets[i] = target
	}

	if err := utils.RecreateDir(se.restoreDir); err != nil {
		return nil, ioErr("recreate", se.restoreDir, err)
	}

	result := &RestoreResult{PassID: passID, Files: len(manifest.Files)}
	for i, entry := range manifest.Files {
		target := targets[i]
		if err := utils.EnsureParent(target); err != nil {
			return nil, ioErr("mkdir", filepath.Dir(target), err)
		}

		n, err := se.transport.Download(ctx, DataURL(cfg.BaseURL, entry.Path), auth, target)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", entry.Path, err)
		}

		actual, err := FileDigest(target)
		if err != nil {
			return nil, err
		}
		if actual != entry.SHA256 {
			return nil, &IntegrityError{Path: entry.Path, Expected: entry.SHA256, Actual: actual}
		}

		result.Bytes += n
		slog.Debug("restore verified", "path", entry.Path, "size", humanize.Bytes(uint64(n)))
	}

	if err := se.swapIn(se.restoreDir); err != nil {
		return nil, fmt.Errorf("swap restored state: %w", err)
	}

	if err := os.RemoveAll(se.restoreDir); err != nil {
		slog.Warn("restore cleanup", "dir", se.restoreDir, "error", err)
	}

	slog.Info("restore done", "pass", passID, "files", result.Files, "size", humanize.Bytes(uint64(result.Bytes)))
	return result, nil
}

// StagingPath resolves a manifest path below root. Absolute paths, backslashes
// and empty, "." or ".." segments are rejected with *UnsafePathError, and the
// joined result must still lie inside root.
func StagingPath(root, logicalPath string) (string, error) {
	unsafe := &UnsafePathError{Path: logicalPath}

	if !validLogicalPath(logicalPath) || filepath.VolumeName(logicalPath) != "" {
		return "", unsafe
	}

	target := filepath.Join(root, filepath.FromSlash(logicalPath))
	if target == filepath.Clean(root) || !utils.IsChildPath(root, target) {
		return "", unsafe
	}
	return target, nil
}

// swapIn replaces the live database files and images directory with the staged
// ones. This is the one window where a crash leaves local state inconsistent;
// it does only local file moves to keep it short.
func (se *SyncEngine) swapIn(staged string) (err error) {
	livePath := se.db.Path()
	stagedDB := filepath.Join(staged, snapshotDBDir)
	mainName, err := stagedDatabaseName(stagedDB, filepath.Base(livePath))
	if err != nil {
		return err
	}

	defer func() {
		if rerr := se.db.Reopen(); rerr != nil {
			err = errors.Join(err, ioErr("reopen database", se.db.Path(), rerr))
		}
	}()

	if err := se.db.Close(); err != nil {
		return ioErr("close database", se.db.Path(), err)
	}

	for _, f := range databaseFiles(livePath) {
		if err := utils.RemoveIfExists(f); err != nil {
			return ioErr("remove", f, err)
		}
	}
	if err := os.RemoveAll(se.imagesDir); err != nil {
		return ioErr("remove", se.imagesDir, err)
	}
	if err := utils.EnsureDir(se.imagesDir); err != nil {
		return ioErr("mkdir", se.imagesDir, err)
	}

	if mainName != "" {
		for i, src := range databaseFiles(filepath.Join(stagedDB, mainName)) {
			if !utils.FileExists(src) {
				continue
			}
			dst := livePath + databaseSideSuffixes[i]
			if err := utils.MoveFile(src, dst); err != nil {
				return ioErr("restore database", dst, err)
			}
		}
	}

	if err := utils.MoveTree(filepath.Join(staged, snapshotImagesDir), se.imagesDir); err != nil {
		return ioErr("restore images", se.imagesDir, err)
	}
	return nil
}

// stagedDatabaseName picks the staged main database file. The live name wins;
// otherwise the only main file (a name without a -wal/-shm suffix) is used, so
// a snapshot taken from a device with a different database file name still
// restores. An empty result means the snapshot carries no database.
func stagedDatabaseName(stagedDB, liveName string) (string, error) {
	if utils.FileExists(filepath.Join(stagedDB, liveName)) {
		return liveName, nil
	}

	entries, err := os.ReadDir(stagedDB)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", ioErr("read", stagedDB, err)
	}

	var mains []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, "-wal") || strings.HasSuffix(name, "-shm") {
			continue
		}
		mains = append(mains, name)
	}

	switch len(mains) {
	case 0:
		return "", nil
	case 1:
		slog.Warn("restore database name differs", "remote", mains[0], "local", liveName)
		return mains[0], nil
	default:
		return "", ioErr("restore database", stagedDB, fmt.Errorf("ambiguous database files %v", mains))
	}
}
