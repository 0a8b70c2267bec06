package davsync

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/dogcuisine/davsync/internal/config"
)

// ConfigLoader returns the sync config to use for the next pass. It is called
// once per pass so config changes between passes take effect.
type ConfigLoader func() (*config.SyncConfig, error)

// PassFunc runs one sync pass.
type PassFunc func(ctx context.Context, cfg *config.SyncConfig) error

// AutoSync serializes sync passes on a single worker and coalesces requests.
//
// The scheduler is either idle or running. A request while idle starts a pass.
// A request while running fills the single pending slot, or is dropped if the
// slot is already full. When a pass ends and the slot is full, exactly one
// more pass runs with freshly loaded config. A burst of requests therefore
// yields at most two passes.
type AutoSync struct {
	requests chan struct{}
	load     ConfigLoader
	pass     PassFunc
	running  atomic.Bool
	passes   atomic.Int64
}

func NewAutoSync(load ConfigLoader, pass PassFunc) *AutoSync {
	return &AutoSync{
		requests: make(chan struct{}, 1),
		load:     load,
		pass:     pass,
	}
}

// NewEngineAutoSync schedules upload passes of engine.
func NewEngineAutoSync(engine *SyncEngine, load ConfigLoader) *AutoSync {
	return NewAutoSync(load, func(ctx context.Context, cfg *config.SyncConfig) error {
		_, err := engine.Upload(ctx, cfg)
		return err
	})
}

// Request asks for a sync pass and never blocks. It returns false when the
// request was merged into one already pending.
func (a *AutoSync) Request() bool {
	select {
	case a.requests <- struct{}{}:
		return true
	default:
		slog.Debug("autosync request coalesced")
		return false
	}
}

// IsRunning reports whether a pass is in flight.
func (a *AutoSync) IsRunning() bool {
	return a.running.Load()
}

// Pending reports whether a request is waiting for the worker.
func (a *AutoSync) Pending() bool {
	return len(a.requests) > 0
}

// Passes returns the number of passes started so far.
func (a *AutoSync) Passes() int64 {
	return a.passes.Load()
}

// Run is the worker loop. It returns nil when ctx is done; a pass already in
// flight runs to completion first.
func (a *AutoSync) Run(ctx context.Context) error {
	slog.Info("autosync start")
	defer slog.Info("autosync stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.requests:
			a.runOnce(ctx)
		}
	}
}

func (a *AutoSync) runOnce(ctx context.Context) {
	cfg, err := a.load()
	if errors.Is(err, config.ErrNotConfigured) {
		slog.Info("autosync skipped", "reason", "not configured")
		return
	} else if err != nil {
		slog.Error("autosync load config", "error", err)
		return
	}

	a.running.Store(true)
	defer a.running.Store(false)
	a.passes.Add(1)

	// the pass outlives ctx so the remote never sees a half-written pass
	if err := a.pass(context.WithoutCancel(ctx), cfg); err != nil {
		if errors.Is(err, ErrSyncAlreadyRunning) {
			slog.Warn("autosync pass skipped", "reason", "sync already running")
			return
		}
		slog.Error("autosync pass failed", "error", err)
	}
}
