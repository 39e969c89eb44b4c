package datasource

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of writes into one change signal.
const DefaultDebounce = 100 * time.Millisecond

// Watcher signals when the replay database is written, so the viewer can
// poll early instead of waiting for the next tick.
type Watcher struct {
	watcher  *fsnotify.Watcher
	names    map[string]bool
	debounce time.Duration
	logger   *slog.Logger
	onChange chan struct{}
	done     chan struct{}
}

// NewWatcher watches dbPath. The parent directory is watched so writes to the
// WAL and SHM files are seen too. A non-positive debounce uses DefaultDebounce.
func NewWatcher(dbPath string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(dbPath)); err != nil {
		fw.Close()
		return nil, err
	}

	base := filepath.Base(dbPath)
	w := &Watcher{
		watcher:  fw,
		names:    map[string]bool{base: true, base + "-wal": true, base + "-shm": true},
		debounce: debounce,
		logger:   logger,
		onChange: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Changes receives one signal per debounced burst of writes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.onChange
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.names[filepath.Base(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.signal)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("db watch error", "err", err)
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.onChange <- struct{}{}:
	default:
	}
}
