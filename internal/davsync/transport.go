package davsync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/dogcuisine/davsync/internal/version"
	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
)

const (
	// payloads include a whole database file and many images; short timeouts
	// turn a slow link into a failed sync
	DefaultConnectTimeout   = 60 * time.Second
	DefaultReadWriteTimeout = 120 * time.Second

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"
	contentTypeBinary   = "application/octet-stream"
)

// Auth carries optional basic auth credentials. An empty Username disables auth;
// an empty Password is allowed.
type Auth struct {
	Username string
	Password string
}

func AuthFromConfig(cfg *config.SyncConfig) Auth {
	if !cfg.HasAuth() {
		return Auth{}
	}
	return Auth{Username: cfg.Username, Password: cfg.Password}
}

func (a Auth) header() string {
	if a.Username == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(a.Username+":"+a.Password))
}

// Transport speaks plain HTTP GET/PUT/DELETE to a WebDAV origin. No WebDAV
// specific methods are used: the remote is a flat namespace of objects.
type Transport struct {
	client    *req.Client
	userAgent string
}

type TransportOption func(*transportConfig)

type transportConfig struct {
	connectTimeout   time.Duration
	readWriteTimeout time.Duration
	userAgent        string
}

func WithConnectTimeout(d time.Duration) TransportOption {
	return func(c *transportConfig) {
		c.connectTimeout = d
	}
}

// WithReadWriteTimeout bounds each individual read or write on the connection,
// not the whole transfer.
func WithReadWriteTimeout(d time.Duration) TransportOption {
	return func(c *transportConfig) {
		c.readWriteTimeout = d
	}
}

func WithUserAgent(ua string) TransportOption {
	return func(c *transportConfig) {
		c.userAgent = ua
	}
}

func NewTransport(opts ...TransportOption) *Transport {
	cfg := &transportConfig{
		connectTimeout:   DefaultConnectTimeout,
		readWriteTimeout: DefaultReadWriteTimeout,
		userAgent:        version.UserAgent(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dialer := &net.Dialer{Timeout: cfg.connectTimeout, KeepAlive: 30 * time.Second}
	// req defaults to a whole-request timeout; only the dial, TLS and per-I/O
	// deadlines may bound a transfer
	client := req.C().
		SetTimeout(0).
		SetUserAgent(cfg.userAgent).
		SetTLSHandshakeTimeout(cfg.connectTimeout).
		DisableAutoDecode().
		SetDial(func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, timeout: cfg.readWriteTimeout}, nil
		})

	return &Transport{client: client, userAgent: cfg.userAgent}
}

func (t *Transport) request(ctx context.Context, auth Auth) *req.Request {
	r := t.client.R().SetContext(ctx)
	if h := auth.header(); h != "" {
		r.SetHeader(headerAuthorization, h)
	}
	return r
}

// Get fetches a small object into memory. A 404 is reported as ErrNotFound;
// every other non-200 status is a *TransportError.
func (t *Transport) Get(ctx context.Context, rawURL string, auth Auth) ([]byte, error) {
	slog.Debug("webdav request", "method", http.MethodGet, "url", rawURL)
	resp, err := t.request(ctx, auth).Get(rawURL)
	if err != nil {
		return nil, &NetworkError{Method: http.MethodGet, URL: rawURL, Err: err}
	}
	code := resp.GetStatusCode()
	slog.Debug("webdav response", "method", http.MethodGet, "url", rawURL, "code", code)

	switch code {
	case http.StatusOK:
		data, err := resp.ToBytes()
		if err != nil {
			return nil, &NetworkError{Method: http.MethodGet, URL: rawURL, Err: err}
		}
		return data, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, &TransportError{Method: http.MethodGet, URL: rawURL, StatusCode: code, Body: truncateBody(resp.String())}
	}
}

// Download streams an object into dst and returns the number of bytes written.
// Any status other than 200, including 404, is a *TransportError and dst is removed.
func (t *Transport) Download(ctx context.Context, rawURL string, auth Auth, dst string) (int64, error) {
	slog.Debug("webdav request", "method", http.MethodGet, "url", rawURL, "dst", dst)
	resp, err := t.request(ctx, auth).
		SetOutputFile(dst).
		Get(rawURL)
	if err != nil {
		os.Remove(dst)
		return 0, &NetworkError{Method: http.MethodGet, URL: rawURL, Err: err}
	}
	code := resp.GetStatusCode()
	slog.Debug("webdav response", "method", http.MethodGet, "url", rawURL, "code", code)

	if code != http.StatusOK {
		// the error body lands in the output file
		body := readSnippet(dst)
		if body == "" {
			body = resp.String()
		}
		os.Remove(dst)
		return 0, &TransportError{Method: http.MethodGet, URL: rawURL, StatusCode: code, Body: truncateBody(body)}
	}

	info, err := os.Stat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		// an empty body may leave no output file behind
		if err := os.WriteFile(dst, nil, 0o644); err != nil {
			return 0, ioErr("create", dst, err)
		}
		return 0, nil
	} else if err != nil {
		return 0, ioErr("stat", dst, err)
	}
	return info.Size(), nil
}

// PutFile streams the file at path with an explicit Content-Length and returns
// the size and SHA-256 of the bytes actually sent. These differ from an earlier
// digest of the same file only when it was rewritten in place meanwhile.
func (t *Transport) PutFile(ctx context.Context, rawURL string, auth Auth, path string) (int64, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, "", ioErr("open", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, "", ioErr("stat", path, err)
	}

	h := sha256.New()
	if err := t.put(ctx, rawURL, auth, io.TeeReader(file, h), info.Size()); err != nil {
		return 0, "", err
	}
	return info.Size(), hex.EncodeToString(h.Sum(nil)), nil
}

// PutBytes uploads an in-memory payload.
func (t *Transport) PutBytes(ctx context.Context, rawURL string, auth Auth, data []byte) error {
	return t.put(ctx, rawURL, auth, bytes.NewReader(data), int64(len(data)))
}

// put goes through the req client's http.Client directly: the body must be
// streamed with a fixed length, never buffered or sent chunked.
func (t *Transport) put(ctx context.Context, rawURL string, auth Auth, body io.Reader, length int64) error {
	slog.Debug("webdav request", "method", http.MethodPut, "url", rawURL, "size", humanize.Bytes(uint64(length)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, body)
	if err != nil {
		return fmt.Errorf("webdav PUT %s: %w", rawURL, err)
	}
	httpReq.ContentLength = length
	if length == 0 {
		httpReq.Body = http.NoBody
	}
	httpReq.Header.Set(headerContentType, contentTypeBinary)
	httpReq.Header.Set(headerUserAgent, t.userAgent)
	if h := auth.header(); h != "" {
		httpReq.Header.Set(headerAuthorization, h)
	}

	resp, err := t.client.GetClient().Do(httpReq)
	if err != nil {
		return &NetworkError{Method: http.MethodPut, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()
	slog.Debug("webdav response", "method", http.MethodPut, "url", rawURL, "code", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*4))
		return &TransportError{Method: http.MethodPut, URL: rawURL, StatusCode: resp.StatusCode, Body: truncateBody(string(snippet))}
	}
}

// Delete removes an object. It returns false when the object was already gone.
func (t *Transport) Delete(ctx context.Context, rawURL string, auth Auth) (bool, error) {
	slog.Debug("webdav request", "method", http.MethodDelete, "url", rawURL)
	resp, err := t.request(ctx, auth).Delete(rawURL)
	if err != nil {
		return false, &NetworkError{Method: http.MethodDelete, URL: rawURL, Err: err}
	}
	code := resp.GetStatusCode()
	slog.Debug("webdav response", "method", http.MethodDelete, "url", rawURL, "code", code)

	switch code {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &TransportError{Method: http.MethodDelete, URL: rawURL, StatusCode: code, Body: truncateBody(resp.String())}
	}
}

func readSnippet(path string) string {
	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("read error body", "path", path, "error", err)
		}
		return ""
	}
	defer file.Close()
	data, _ := io.ReadAll(io.LimitReader(file, maxErrorBody*4))
	return string(data)
}

// deadlineConn refreshes the read or write deadline before every I/O call, so
// a transfer only fails when the peer stalls, not when it is merely large.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
