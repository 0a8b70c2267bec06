package davsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

const ManifestVersion = 1

// ManifestEntry is one file the remote is believed to hold.
type ManifestEntry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest is the remote's table of contents. It is the only source of truth
// about remote content; the store itself is never listed.
type Manifest struct {
	Version   int             `json:"version"`
	UpdatedAt int64           `json:"updatedAt"` // epoch millis
	Files     []ManifestEntry `json:"files"`
}

// ManifestResult distinguishes "no manifest yet" from an empty one.
type ManifestResult struct {
	Manifest *Manifest
	Found    bool
}

// Entries returns the files keyed by path, or an empty map when not found.
func (r ManifestResult) Entries() map[string]ManifestEntry {
	if !r.Found || r.Manifest == nil {
		return map[string]ManifestEntry{}
	}
	return r.Manifest.byPath()
}

// NewManifest builds a fresh manifest from the local entries of a pass.
func NewManifest(local []LocalFileEntry, now time.Time) *Manifest {
	files := make([]ManifestEntry, 0, len(local))
	for _, entry := range local {
		files = append(files, ManifestEntry{Path: entry.Path, Size: entry.Size, SHA256: entry.SHA256})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &Manifest{
		Version:   ManifestVersion,
		UpdatedAt: now.UnixMilli(),
		Files:     files,
	}
}

func (m *Manifest) byPath() map[string]ManifestEntry {
	entries := make(map[string]ManifestEntry, len(m.Files))
	for _, f := range m.Files {
		entries[f.Path] = f
	}
	return entries
}

// TotalSize is the sum of all entry sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// Validate checks the invariants a manifest must hold before anything acts on it.
func (m *Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Files))
	for i, f := range m.Files {
		if f.Path == "" {
			return fmt.Errorf("entry %d: empty path", i)
		}
		if _, dup := seen[f.Path]; dup {
			return fmt.Errorf("entry %d: duplicate path %q", i, f.Path)
		}
		seen[f.Path] = struct{}{}
		if f.Size < 0 {
			return fmt.Errorf("entry %q: negative size %d", f.Path, f.Size)
		}
		if !isHexDigest(f.SHA256) {
			return fmt.Errorf("entry %q: malformed sha256 %q", f.Path, f.SHA256)
		}
	}
	return nil
}

// EncodeManifest serializes m to compact JSON with files sorted by path.
func EncodeManifest(m *Manifest) ([]byte, error) {
	out := *m
	out.Files = make([]ManifestEntry, len(m.Files))
	copy(out.Files, m.Files)
	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })

	data, err := jsonMarshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// DecodeManifest parses and validates a manifest body. Every failure is a
// *ManifestCorruptError.
func DecodeManifest(data []byte) (*Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &ManifestCorruptError{Err: errors.New("empty document")}
	}

	var m Manifest
	if err := jsonUnmarshal(trimmed, &m); err != nil {
		return nil, &ManifestCorruptError{Err: err}
	}
	if err := m.Validate(); err != nil {
		return nil, &ManifestCorruptError{Err: err}
	}
	return &m, nil
}

// FetchManifest downloads the manifest. A missing manifest is a normal result
// (Found=false); a present but unparsable one is an error, never an empty set.
func FetchManifest(ctx context.Context, t *Transport, base string, auth Auth) (ManifestResult, error) {
	data, err := t.Get(ctx, ManifestURL(base), auth)
	if errors.Is(err, ErrNotFound) {
		return ManifestResult{}, nil
	}
	if err != nil {
		return ManifestResult{}, err
	}

	m, err := DecodeManifest(data)
	if err != nil {
		return ManifestResult{}, err
	}
	return ManifestResult{Manifest: m, Found: true}, nil
}

// PublishManifest uploads m. It must be the last write of an upload pass.
func PublishManifest(ctx context.Context, t *Transport, base string, auth Auth, m *Manifest) error {
	data, err := EncodeManifest(m)
	if err != nil {
		return err
	}
	return t.PutBytes(ctx, ManifestURL(base), auth, data)
}
