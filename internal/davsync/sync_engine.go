package davsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dogcuisine/davsync/internal/config"
	"github.com/google/uuid"
)

const (
	PassUpload  = "upload"
	PassRestore = "restore"
)

// EngineConfig wires a SyncEngine. Transport, Database, ImagesDir, SnapshotDir
// and RestoreDir are required.
type EngineConfig struct {
	Transport   *Transport
	Database    Database
	ImagesDir   string
	SnapshotDir string
	RestoreDir  string
	Ignore      *SyncIgnoreList
	Journal     *SyncJournal // optional pass history
}

// SyncEngine uploads local state to a WebDAV remote and restores it back.
// Passes are serialized: a second concurrent call gets ErrSyncAlreadyRunning.
type SyncEngine struct {
	transport   *Transport
	db          Database
	imagesDir   string
	snapshotDir string
	restoreDir  string
	collector   *LocalStateCollector
	snapshotter *Snapshotter
	journal     *SyncJournal
	now         func() time.Time
	muSync      sync.Mutex
}

func NewSyncEngine(cfg *EngineConfig) (*SyncEngine, error) {
	switch {
	case cfg.Transport == nil:
		return nil, errors.New("sync engine: transport is required")
	case cfg.Database == nil:
		return nil, errors.New("sync engine: database is required")
	case cfg.ImagesDir == "":
		return nil, errors.New("sync engine: images dir is required")
	case cfg.SnapshotDir == "" || cfg.RestoreDir == "":
		return nil, errors.New("sync engine: snapshot and restore dirs are required")
	case cfg.SnapshotDir == cfg.RestoreDir:
		return nil, errors.New("sync engine: snapshot and restore dirs must differ")
	}

	ignore := cfg.Ignore
	if ignore == nil {
		ignore = NewSyncIgnoreList()
	}

	return &SyncEngine{
		transport:   cfg.Transport,
		db:          cfg.Database,
		imagesDir:   cfg.ImagesDir,
		snapshotDir: cfg.SnapshotDir,
		restoreDir:  cfg.RestoreDir,
		collector:   NewLocalStateCollector(ignore),
		snapshotter: NewSnapshotter(cfg.Database, cfg.ImagesDir),
		journal:     cfg.Journal,
		now:         time.Now,
	}, nil
}

// Upload runs one upload pass against cfg's remote.
func (se *SyncEngine) Upload(ctx context.Context, cfg *config.SyncConfig) (*UploadResult, error) {
	if !se.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer se.muSync.Unlock()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	passID := uuid.NewString()
	start := se.now()
	slog.Info("upload start", "pass", passID, "base", cfg.BaseURL)

	result, err := se.upload(ctx, cfg, passID)
	duration := se.now().Sub(start)

	rec := &PassRecord{ID: passID, Kind: PassUpload, StartedAt: start, Duration: duration}
	if result != nil {
		result.Duration = duration
		rec.Files = result.Files
		rec.Uploaded = len(result.Uploaded)
		rec.Deleted = len(result.Deleted)
		rec.Unchanged = result.Unchanged
		rec.Bytes = result.BytesUploaded
	}
	se.record(rec, err)

	if err != nil {
		slog.Error("upload failed", "pass", passID, "error", err)
		return nil, err
	}
	return result, nil
}

// Restore replaces local state with the remote snapshot.
func (se *SyncEngine) Restore(ctx context.Context, cfg *config.SyncConfig) (*RestoreResult, error) {
	if !se.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer se.muSync.Unlock()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	passID := uuid.NewString()
	start := se.now()
	slog.Info("restore start", "pass", passID, "base", cfg.BaseURL)

	result, err := se.restore(ctx, cfg, passID)
	duration := se.now().Sub(start)

	rec := &PassRecord{ID: passID, Kind: PassRestore, StartedAt: start, Duration: duration}
	if result != nil {
		result.Duration = duration
		rec.Files = result.Files
		rec.Bytes = result.Bytes
	}
	se.record(rec, err)

	if err != nil {
		slog.Error("restore failed", "pass", passID, "error", err)
		return nil, err
	}
	return result, nil
}

// record stores the pass outcome. Journal failures are logged, never returned:
// history must not turn a good pass into a failed one.
func (se *SyncEngine) record(rec *PassRecord, passErr error) {
	if se.journal == nil {
		return
	}
	if passErr != nil {
		rec.Error = passErr.Error()
	}
	if err := se.journal.Record(rec); err != nil {
		slog.Warn("sync journal record", "pass", rec.ID, "error", fmt.Errorf("record pass: %w", err))
	}
}
