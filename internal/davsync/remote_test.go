package davsync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/webdav"
)

const remoteDir = "/remote"

// testRemote is an in-memory WebDAV server that counts requests and lets a
// test intercept them.
type testRemote struct {
	server *httptest.Server
	fs     webdav.FileSystem

	mu     sync.Mutex
	counts map[string]int
	auth   []string
	tamper func(w http.ResponseWriter, r *http.Request) bool
}

func newTestRemote(t *testing.T) *testRemote {
	t.Helper()

	fs := webdav.NewMemFS()
	require.NoError(t, fs.Mkdir(context.Background(), remoteDir, 0o755))

	dav := &webdav.Handler{FileSystem: fs, LockSystem: webdav.NewMemLS()}
	remote := &testRemote{fs: fs, counts: make(map[string]int)}

	remote.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remote.mu.Lock()
		remote.counts[r.Method]++
		remote.auth = append(remote.auth, r.Header.Get(headerAuthorization))
		tamper := remote.tamper
		remote.mu.Unlock()

		if tamper != nil && tamper(w, r) {
			return
		}
		dav.ServeHTTP(w, r)
	}))
	t.Cleanup(remote.server.Close)

	return remote
}

// baseURL carries a trailing slash on purpose; it must be trimmed.
func (r *testRemote) baseURL() string {
	return r.server.URL + remoteDir + "/"
}

func (r *testRemote) config() *config.SyncConfig {
	return &config.SyncConfig{BaseURL: r.baseURL()}
}

func (r *testRemote) setTamper(fn func(w http.ResponseWriter, r *http.Request) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tamper = fn
}

func (r *testRemote) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[method]
}

func (r *testRemote) resetCounts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = make(map[string]int)
	r.auth = nil
}

func (r *testRemote) authHeaders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.auth...)
}

func (r *testRemote) readObject(t *testing.T, name string) []byte {
	t.Helper()
	f, err := r.fs.OpenFile(context.Background(), remoteDir+"/"+name, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

func (r *testRemote) writeObject(t *testing.T, name string, data []byte) {
	t.Helper()
	f, err := r.fs.OpenFile(context.Background(), remoteDir+"/"+name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func (r *testRemote) hasObject(name string) bool {
	_, err := r.fs.Stat(context.Background(), remoteDir+"/"+name)
	return err == nil
}

// objects lists the remote directory, sorted.
func (r *testRemote) objects(t *testing.T) []string {
	t.Helper()
	f, err := r.fs.OpenFile(context.Background(), remoteDir, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer f.Close()
	infos, err := f.Readdir(-1)
	require.NoError(t, err)

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names
}

func (r *testRemote) manifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := DecodeManifest(r.readObject(t, manifestName))
	require.NoError(t, err)
	return m
}

// fakeDatabase is a live database stand-in backed by a plain file.
type fakeDatabase struct {
	path    string
	open    bool
	closes  int
	reopens int
}

func (d *fakeDatabase) Path() string { return d.path }

func (d *fakeDatabase) Close() error {
	d.open = false
	d.closes++
	return nil
}

func (d *fakeDatabase) Reopen() error {
	d.open = true
	d.reopens++
	return nil
}

// testDevice is one local installation syncing against a remote.
type testDevice struct {
	root      string
	imagesDir string
	db        *fakeDatabase
	engine    *SyncEngine
}

func newTestDevice(t *testing.T) *testDevice {
	t.Helper()
	root := t.TempDir()

	dev := &testDevice{
		root:      root,
		imagesDir: filepath.Join(root, "images"),
		db:        &fakeDatabase{path: filepath.Join(root, "main.db"), open: true},
	}

	engine, err := NewSyncEngine(&EngineConfig{
		Transport:   NewTransport(WithConnectTimeout(5*time.Second), WithReadWriteTimeout(10*time.Second)),
		Database:    dev.db,
		ImagesDir:   dev.imagesDir,
		SnapshotDir: filepath.Join(root, ".davsync", "cache", "sync_incremental"),
		RestoreDir:  filepath.Join(root, ".davsync", "cache", "sync_incremental_restore"),
	})
	require.NoError(t, err)
	dev.engine = engine
	return dev
}

func (d *testDevice) writeDB(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(d.db.path, []byte(content), 0o644))
}

func (d *testDevice) writeImage(t *testing.T, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(d.imagesDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func (d *testDevice) removeImage(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(d.imagesDir, filepath.FromSlash(rel))))
}

func (d *testDevice) readImage(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(d.imagesDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return data
}

func (d *testDevice) readDB(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(d.db.path)
	require.NoError(t, err)
	return string(data)
}

func filledBytes(n int, b byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = b
	}
	return data
}
