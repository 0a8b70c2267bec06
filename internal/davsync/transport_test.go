package davsync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method        string
	auth          string
	contentLength int64
	chunked       bool
	body          []byte
}

// statusServer answers every request with status and body and records what it received.
func statusServer(t *testing.T, status int, body string) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			method:        r.Method,
			auth:          r.Header.Get(headerAuthorization),
			contentLength: r.ContentLength,
			chunked:       len(r.TransferEncoding) > 0,
			body:          data,
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestAuthHeader(t *testing.T) {
	assert.Equal(t, "", Auth{}.header())
	assert.Equal(t, "", Auth{Password: "secret"}.header(), "no username, no auth")
	assert.Equal(t, "Basic dXNlcjpwYXNz", Auth{Username: "user", Password: "pass"}.header())
	assert.Equal(t, "Basic dXNlcjo=", Auth{Username: "user"}.header())
}

func TestAuthFromConfig(t *testing.T) {
	assert.Equal(t, Auth{Username: "u", Password: "p"}, AuthFromConfig(&config.SyncConfig{Username: "u", Password: "p"}))
	assert.Equal(t, Auth{}, AuthFromConfig(&config.SyncConfig{Password: "orphan"}))
}

func TestTransport_Get(t *testing.T) {
	ctx := context.Background()
	tr := NewTransport()

	t.Run("ok", func(t *testing.T) {
		srv, reqs := statusServer(t, http.StatusOK, "payload")
		data, err := tr.Get(ctx, srv.URL+"/manifest.json", Auth{Username: "u", Password: "p"})
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
		assert.Equal(t, "Basic dTpw", reqs()[0].auth)
	})

	t.Run("not found", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusNotFound, "nope")
		_, err := tr.Get(ctx, srv.URL+"/manifest.json", Auth{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unauthorized", func(t *testing.T) {
		srv, reqs := statusServer(t, http.StatusUnauthorized, "who are you")
		_, err := tr.Get(ctx, srv.URL+"/manifest.json", Auth{})
		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, http.StatusUnauthorized, terr.StatusCode)
		assert.Equal(t, "who are you", terr.Body)
		assert.Equal(t, "", reqs()[0].auth)
	})
}

func TestTransport_Download(t *testing.T) {
	ctx := context.Background()
	tr := NewTransport()
	dir := t.TempDir()

	t.Run("ok", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusOK, "file content")
		dst := filepath.Join(dir, "ok.bin")

		n, err := tr.Download(ctx, srv.URL+"/data_x.bin", Auth{}, dst)
		require.NoError(t, err)
		assert.Equal(t, int64(len("file content")), n)
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "file content", string(data))
	})

	t.Run("404 is a transport error", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusNotFound, "missing object")
		dst := filepath.Join(dir, "missing.bin")

		_, err := tr.Download(ctx, srv.URL+"/data_x.bin", Auth{}, dst)
		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.False(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, http.StatusNotFound, terr.StatusCode)
		assert.Contains(t, terr.Body, "missing object")
		assert.NoFileExists(t, dst)
	})
}

func TestTransport_Put(t *testing.T) {
	ctx := context.Background()
	tr := NewTransport()

	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, reqs := statusServer(t, status, "")
			path := filepath.Join(t.TempDir(), "f")
			require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

			n, digest, err := tr.PutFile(ctx, srv.URL+"/data_x.bin", Auth{Username: "u"}, path)
			require.NoError(t, err)
			assert.Equal(t, int64(10), n)
			assert.Equal(t, BytesDigest([]byte("0123456789")), digest)

			got := reqs()[0]
			assert.Equal(t, http.MethodPut, got.method)
			assert.Equal(t, int64(10), got.contentLength)
			assert.False(t, got.chunked)
			assert.Equal(t, []byte("0123456789"), got.body)
			assert.Equal(t, "Basic dTo=", got.auth)
		})
	}

	t.Run("rejected status", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusForbidden, strings.Repeat("é", 600))
		err := tr.PutBytes(ctx, srv.URL+"/manifest.json", Auth{}, []byte("{}"))

		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, http.StatusForbidden, terr.StatusCode)
		assert.Equal(t, strings.Repeat("é", 500)+"...", terr.Body)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := tr.PutFile(ctx, "http://127.0.0.1:1/x", Auth{}, filepath.Join(t.TempDir(), "nope"))
		var ioe *IOError
		assert.ErrorAs(t, err, &ioe)
	})
}

func TestTransport_Delete(t *testing.T) {
	ctx := context.Background()
	tr := NewTransport()

	tests := []struct {
		status  int
		existed bool
		fails   bool
	}{
		{http.StatusOK, true, false},
		{http.StatusAccepted, true, false},
		{http.StatusNoContent, true, false},
		{http.StatusNotFound, false, false},
		{http.StatusMethodNotAllowed, false, true},
		{http.StatusInternalServerError, false, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, _ := statusServer(t, tt.status, "")
			existed, err := tr.Delete(ctx, srv.URL+"/data_x.bin", Auth{})
			if tt.fails {
				var terr *TransportError
				require.ErrorAs(t, err, &terr)
				assert.Equal(t, tt.status, terr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.existed, existed)
		})
	}
}

func TestTransport_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewTransport(WithConnectTimeout(time.Second))
	_, err := tr.Get(context.Background(), url+"/manifest.json", Auth{})
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, http.MethodGet, nerr.Method)
}

func TestTransport_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	tr := NewTransport(WithReadWriteTimeout(100 * time.Millisecond))
	_, err := tr.Get(context.Background(), srv.URL+"/manifest.json", Auth{})
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
}

func TestTransport_SlowTransferOutlivesIOTimeout(t *testing.T) {
	const chunks = 12
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "12")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < chunks; i++ {
			w.Write([]byte{'x'})
			flusher.Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)

	// each read completes well within the deadline, the whole transfer does not
	tr := NewTransport(WithReadWriteTimeout(200 * time.Millisecond))
	assert.Zero(t, tr.client.GetClient().Timeout, "no whole-request timeout")

	dst := filepath.Join(t.TempDir(), "slow.bin")
	start := time.Now()
	n, err := tr.Download(context.Background(), srv.URL+"/data_slow.bin", Auth{}, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(chunks), n)
	assert.Greater(t, time.Since(start), 200*time.Millisecond)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", chunks), string(data))
}

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "", truncateBody(""))
	assert.Equal(t, strings.Repeat("a", 500), truncateBody(strings.Repeat("a", 500)))
	assert.Equal(t, strings.Repeat("a", 500)+"...", truncateBody(strings.Repeat("a", 501)))
}
