package davsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/dustin/go-humanize"
)

// upload snapshots, diffs against the remote manifest, applies the diff and
// publishes a fresh manifest. The manifest goes last: if the pass dies midway
// the remote manifest still describes the previous consistent state.
func (se *SyncEngine) upload(ctx context.Context, cfg *config.SyncConfig, passID string) (*UploadResult, error) {
	auth := AuthFromConfig(cfg)

	if err := se.snapshotter.Take(se.snapshotDir); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	local, err := se.collector.Collect(se.snapshotDir)
	if err != nil {
		return nil, fmt.Errorf("collect local state: %w", err)
	}

	remote, err := FetchManifest(ctx, se.transport, cfg.BaseURL, auth)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	if !remote.Found {
		slog.Info("upload", "pass", passID, "manifest", "not found, first full upload")
	}

	plan := PlanUpload(local, remote.Entries())
	slog.Debug("upload plan",
		"pass", passID,
		"uploads", len(plan.Uploads),
		"deletes", len(plan.Deletes),
		"unchanged", plan.Unchanged.Cardinality(),
		"size", humanize.Bytes(uint64(plan.UploadBytes())),
	)

	result := &UploadResult{
		PassID:      passID,
		FirstUpload: !remote.Found,
		Files:       len(local),
		Uploaded:    make([]string, 0, len(plan.Uploads)),
		Deleted:     make([]string, 0, len(plan.Deletes)),
		Unchanged:   plan.Unchanged.Cardinality(),
	}

	index := make(map[string]int, len(local))
	for i, entry := range local {
		index[entry.Path] = i
	}

	for _, entry := range plan.Uploads {
		n, digest, err := se.transport.PutFile(ctx, DataURL(cfg.BaseURL, entry.Path), auth, entry.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", entry.Path, err)
		}
		if digest != entry.SHA256 || n != entry.Size {
			// rewritten in place after hashing; the manifest must describe the
			// remote object, and the next pass picks up any newer content
			slog.Warn("upload changed during pass", "path", entry.Path, "hashed", entry.SHA256, "sent", digest)
			local[index[entry.Path]].SHA256 = digest
			local[index[entry.Path]].Size = n
		}
		result.Uploaded = append(result.Uploaded, entry.Path)
		result.BytesUploaded += n
		slog.Info("sync", "op", "PUT", "path", entry.Path, "size", humanize.Bytes(uint64(n)))
	}

	for _, entry := range plan.Deletes {
		existed, err := se.transport.Delete(ctx, DataURL(cfg.BaseURL, entry.Path), auth)
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", entry.Path, err)
		}
		result.Deleted = append(result.Deleted, entry.Path)
		slog.Info("sync", "op", "DELETE", "path", entry.Path, "existed", existed)
	}

	manifest := NewManifest(local, se.now())
	if err := PublishManifest(ctx, se.transport, cfg.BaseURL, auth, manifest); err != nil {
		return nil, fmt.Errorf("publish manifest: %w", err)
	}
	result.Manifest = manifest

	slog.Info("upload done",
		"pass", passID,
		"files", result.Files,
		"uploaded", len(result.Uploaded),
		"deleted", len(result.Deleted),
		"unchanged", result.Unchanged,
		"size", humanize.Bytes(uint64(result.BytesUploaded)),
	)
	return result, nil
}
