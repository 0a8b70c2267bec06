package davsync

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	defaultWatchDebounce = 2 * time.Second
	watchEventBufferSize = 64
)

// FilterCallback returns true if an event for path should be dropped.
type FilterCallback func(path string) bool

// FileWatcher reports changes under a directory tree. Events are debounced
// globally: a burst of writes produces a single onChange call once the tree
// has been quiet for the debounce timeout.
type FileWatcher struct {
	watchDir        string
	rawEvents       chan notify.EventInfo
	onChange        func()
	done            chan struct{}
	wg              sync.WaitGroup
	debounceTimeout time.Duration
	timerMu         sync.Mutex
	timer           *time.Timer
	filter          FilterCallback
	callbackMu      sync.RWMutex
}

func NewFileWatcher(watchDir string, onChange func()) *FileWatcher {
	return &FileWatcher{
		watchDir:        watchDir,
		onChange:        onChange,
		done:            make(chan struct{}),
		debounceTimeout: defaultWatchDebounce,
	}
}

// SetDebounceTimeout sets the quiet period before onChange fires
func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	fw.debounceTimeout = timeout
}

// FilterPaths sets a callback that drops raw events before debouncing
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.callbackMu.Lock()
	defer fw.callbackMu.Unlock()
	fw.filter = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	fw.rawEvents = make(chan notify.EventInfo, watchEventBufferSize)

	recursivePath := filepath.Join(fw.watchDir, "...")
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.All); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.filterEvents(ctx)

	return nil
}

func (fw *FileWatcher) Stop() {
	slog.Info("file watcher stopping")

	close(fw.done)
	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()

	fw.timerMu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timerMu.Unlock()

	slog.Info("file watcher stopped")
}

func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer fw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			if fw.ignored(event.Path()) {
				continue
			}
			slog.Debug("file watcher", "event", event.Event(), "path", event.Path())
			fw.touch()
		}
	}
}

func (fw *FileWatcher) ignored(path string) bool {
	fw.callbackMu.RLock()
	defer fw.callbackMu.RUnlock()
	return fw.filter != nil && fw.filter(path)
}

// touch restarts the debounce timer
func (fw *FileWatcher) touch() {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounceTimeout, fw.fire)
}

func (fw *FileWatcher) fire() {
	select {
	case <-fw.done:
		return
	default:
	}
	fw.onChange()
}
