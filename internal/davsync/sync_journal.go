package davsync

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dogcuisine/davsync/internal/db"
	"github.com/dogcuisine/davsync/internal/utils"
	"github.com/jmoiron/sqlx"
)

// the journal is a local history; losing the last record on power loss is fine
const journalPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA synchronous=NORMAL;
`

const journalSchema = `
CREATE TABLE IF NOT EXISTS sync_passes (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    started_at INTEGER NOT NULL, -- epoch millis
    duration_ms INTEGER NOT NULL,
    files INTEGER NOT NULL,
    uploaded INTEGER NOT NULL,
    deleted INTEGER NOT NULL,
    unchanged INTEGER NOT NULL,
    bytes INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_passes_started_at ON sync_passes(started_at);
CREATE INDEX IF NOT EXISTS idx_sync_passes_kind ON sync_passes(kind);
`

// PassRecord is the stored outcome of one upload or restore pass.
type PassRecord struct {
	ID        string
	Kind      string
	StartedAt time.Time
	Duration  time.Duration
	Files     int
	Uploaded  int
	Deleted   int
	Unchanged int
	Bytes     int64
	Error     string
}

func (r *PassRecord) Failed() bool {
	return r.Error != ""
}

type dbPassRecord struct {
	ID         string `db:"id"`
	Kind       string `db:"kind"`
	StartedAt  int64  `db:"started_at"`
	DurationMs int64  `db:"duration_ms"`
	Files      int    `db:"files"`
	Uploaded   int    `db:"uploaded"`
	Deleted    int    `db:"deleted"`
	Unchanged  int    `db:"unchanged"`
	Bytes      int64  `db:"bytes"`
	Error      string `db:"error"`
}

func (d *dbPassRecord) toRecord() *PassRecord {
	return &PassRecord{
		ID:        d.ID,
		Kind:      d.Kind,
		StartedAt: time.UnixMilli(d.StartedAt),
		Duration:  time.Duration(d.DurationMs) * time.Millisecond,
		Files:     d.Files,
		Uploaded:  d.Uploaded,
		Deleted:   d.Deleted,
		Unchanged: d.Unchanged,
		Bytes:     d.Bytes,
		Error:     d.Error,
	}
}

// SyncJournal keeps the history of sync passes in SQLite. It is local
// bookkeeping only; remote state is always read from the manifest.
type SyncJournal struct {
	db     *sqlx.DB
	dbPath string
}

func NewSyncJournal(dbPath string) *SyncJournal {
	return &SyncJournal{dbPath: dbPath}
}

func (s *SyncJournal) Open() error {
	if s.db != nil {
		return fmt.Errorf("sync journal already open")
	}

	if err := utils.EnsureParent(s.dbPath); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := db.NewSqliteDB(
		db.WithPath(s.dbPath),
		db.WithPragmas(journalPragma),
		db.WithMaxOpenConns(1),
		db.WithMaxIdleConns(1),
	)
	if err != nil {
		return fmt.Errorf("failed to open sync journal: %w", err)
	}

	if _, err := conn.Exec(journalSchema); err != nil {
		conn.Close()
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	s.db = conn
	return nil
}

func (s *SyncJournal) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close sync journal: %w", err)
	}
	slog.Debug("sync journal closed")
	return nil
}

// Record inserts a pass outcome.
func (s *SyncJournal) Record(rec *PassRecord) error {
	if s.db == nil {
		return fmt.Errorf("sync journal not open")
	}

	data := dbPassRecord{
		ID:         rec.ID,
		Kind:       rec.Kind,
		StartedAt:  rec.StartedAt.UnixMilli(),
		DurationMs: rec.Duration.Milliseconds(),
		Files:      rec.Files,
		Uploaded:   rec.Uploaded,
		Deleted:    rec.Deleted,
		Unchanged:  rec.Unchanged,
		Bytes:      rec.Bytes,
		Error:      rec.Error,
	}

	query := `INSERT OR REPLACE INTO sync_passes
	          (id, kind, started_at, duration_ms, files, uploaded, deleted, unchanged, bytes, error)
	          VALUES (:id, :kind, :started_at, :duration_ms, :files, :uploaded, :deleted, :unchanged, :bytes, :error)`
	if _, err := s.db.NamedExec(query, data); err != nil {
		return fmt.Errorf("failed to record pass %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit passes, newest first.
func (s *SyncJournal) Recent(limit int) ([]*PassRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("sync journal not open")
	}

	var rows []dbPassRecord
	err := s.db.Select(&rows, `SELECT id, kind, started_at, duration_ms, files, uploaded, deleted, unchanged, bytes, error
		FROM sync_passes ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}

	records := make([]*PassRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// LastSuccess returns the newest successful pass of kind, or nil if none.
func (s *SyncJournal) LastSuccess(kind string) (*PassRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("sync journal not open")
	}

	var rows []dbPassRecord
	err := s.db.Select(&rows, `SELECT id, kind, started_at, duration_ms, files, uploaded, deleted, unchanged, bytes, error
		FROM sync_passes WHERE kind = ? AND error = '' ORDER BY started_at DESC, rowid DESC LIMIT 1`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query last %s: %w", kind, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toRecord(), nil
}
