package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/webdav"
)

func newWebDAVServer(t *testing.T) string {
	t.Helper()
	fs := webdav.NewMemFS()
	require.NoError(t, fs.Mkdir(context.Background(), "/backup", 0o755))
	srv := httptest.NewServer(&webdav.Handler{FileSystem: fs, LockSystem: webdav.NewMemLS()})
	t.Cleanup(srv.Close)
	return srv.URL + "/backup"
}

func TestConfigCommands(t *testing.T) {
	dataDir := t.TempDir()

	out, err := runCommand(t, dataDir, newConfigCmd(), "show")
	require.NoError(t, err)
	assert.Contains(t, out, "(not configured)")

	_, err = runCommand(t, dataDir, newConfigCmd(), "set", "--url", "https://dav.example.com/backup", "--username", "alice", "--password", "hunter2")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dataDir, ".davsync", "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err = runCommand(t, dataDir, newConfigCmd(), "show")
	require.NoError(t, err)
	assert.Contains(t, out, "https://dav.example.com/backup")
	assert.Contains(t, out, "alice")
	assert.NotContains(t, out, "hunter2")

	_, err = runCommand(t, dataDir, newConfigCmd(), "set", "--url", "ftp://nope")
	assert.Error(t, err)
}

func TestRestoreCommand_RequiresConfirmation(t *testing.T) {
	_, err := runCommand(t, t.TempDir(), newRestoreCmd())
	assert.ErrorIs(t, err, errRestoreNotConfirmed)
}

func TestUploadCommand_NotConfigured(t *testing.T) {
	_, err := runCommand(t, t.TempDir(), newUploadCmd())
	assert.Error(t, err)
}

func TestUploadRestoreStatus(t *testing.T) {
	base := newWebDAVServer(t)

	src := t.TempDir()
	_, err := runCommand(t, src, newConfigCmd(), "set", "--url", base)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "images", "covers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "images", "covers", "a.jpg"), []byte("jpeg"), 0o644))

	out, err := runCommand(t, src, newUploadCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "First upload")

	out, err = runCommand(t, src, newStatusCmd(), "--remote")
	require.NoError(t, err)
	assert.Contains(t, out, "Last upload")
	assert.Contains(t, out, "Remote "+base)

	dst := t.TempDir()
	_, err = runCommand(t, dst, newConfigCmd(), "set", "--url", base)
	require.NoError(t, err)

	out, err = runCommand(t, dst, newRestoreCmd(), "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")

	data, err := os.ReadFile(filepath.Join(dst, "images", "covers", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
	assert.FileExists(t, filepath.Join(dst, "app.db"))
}
