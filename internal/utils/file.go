package utils

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFile copies a file from src to dst, creating dst's parent directories.
// The data is fsynced before dst is closed.
func CopyFile(src, dst string) error {
	if err := EnsureParent(dst); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	if err := dstFile.Sync(); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// CopyFileIfExists is CopyFile that treats a missing src as a no-op.
// It returns true if a file was copied.
func CopyFileIfExists(src, dst string) (bool, error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	if err := CopyFile(src, dst); err != nil {
		return false, err
	}
	return true, nil
}

// MoveFile renames src to dst, falling back to copy+remove when a rename is
// not possible (e.g. across devices).
func MoveFile(src, dst string) error {
	if err := EnsureParent(dst); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// RemoveIfExists removes a single file, ignoring a missing one.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// LinkTree mirrors the regular files below src into dst. Each file is hard
// linked when possible and copied otherwise. A missing src is a no-op.
func LinkTree(src, dst string) error {
	if !DirExists(src) {
		return nil
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// files may be removed by the app while we walk
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("link tree rel path: %w", err)
		}
		target := filepath.Join(dst, relPath)

		if d.IsDir() {
			return EnsureDir(target)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if err := os.Link(path, target); err == nil {
			return nil
		}
		if _, err := CopyFileIfExists(path, target); err != nil {
			return fmt.Errorf("link tree copy %s: %w", relPath, err)
		}
		return nil
	})
}

// MoveTree moves the regular files below src into dst, keeping the relative
// layout. A missing src is a no-op.
func MoveTree(src, dst string) error {
	if !DirExists(src) {
		return nil
	}
	if err := EnsureDir(dst); err != nil {
		return err
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("move tree rel path: %w", err)
		}
		target := filepath.Join(dst, relPath)
		if d.IsDir() {
			return EnsureDir(target)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return MoveFile(path, target)
	})
}
