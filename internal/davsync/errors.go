package davsync

import (
	"errors"
	"fmt"
)

const maxErrorBody = 500

var (
	// ErrNotFound is returned by the transport for a 404 on the manifest object.
	ErrNotFound = errors.New("davsync: remote object not found")

	// ErrNoRemoteManifest means restore was attempted before any upload published a manifest.
	ErrNoRemoteManifest = errors.New("davsync: no remote manifest, upload at least once before restoring")

	// ErrSyncAlreadyRunning is returned when a pass is requested while another
	// upload or restore holds the engine.
	ErrSyncAlreadyRunning = errors.New("davsync: sync already running")
)

// TransportError is an HTTP response with a status the operation does not accept.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string // truncated to maxErrorBody characters
}

func (e *TransportError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webdav %s %s: http %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("webdav %s %s: http %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// NetworkError is a failure before any status code was received: dial, TLS,
// timeout or a broken connection.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("webdav %s %s: network: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ManifestCorruptError means the manifest object exists but cannot be trusted.
type ManifestCorruptError struct {
	Err error
}

func (e *ManifestCorruptError) Error() string {
	return fmt.Sprintf("davsync: remote manifest corrupt: %v", e.Err)
}

func (e *ManifestCorruptError) Unwrap() error { return e.Err }

// IntegrityError is a downloaded file whose digest differs from the manifest.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("davsync: integrity check failed for %q: expected sha256 %s, got %s", e.Path, e.Expected, e.Actual)
}

// UnsafePathError is a manifest path that would escape the staging root.
type UnsafePathError struct {
	Path string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("davsync: unsafe remote path %q", e.Path)
}

// IOError is a local filesystem failure while snapshotting, staging or swapping.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("davsync: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

func truncateBody(body string) string {
	if len(body) <= maxErrorBody {
		return body
	}
	// cut on a rune boundary
	runes := []rune(body)
	if len(runes) <= maxErrorBody {
		return body
	}
	return string(runes[:maxErrorBody]) + "..."
}
