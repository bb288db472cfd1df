package index

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/storage"
)

// DefaultDebounce is the quiet period a Watcher waits for before reporting
// a burst of changes.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports changes to the record files of a dataset directory.
// Bursts of events are coalesced into one callback.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func()
	logger   log.Logger
	fw       *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher starts watching dir. onChange runs on its own goroutine after
// debounce has passed without further record-file events.
func NewWatcher(dir string, debounce time.Duration, onChange func(), logger log.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.E(errs.IO, "index.watch", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errs.FromOSDir("index.watch", dir, err)
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		logger:   log.OrNoop(logger),
		fw:       fw,
	}, nil
}

// Run delivers events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !storage.IsRecordFile(filepath.Base(ev.Name)) {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("record file changed", log.String("file", ev.Name), log.String("op", ev.Op.String()))
			w.schedule()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Watch keeps the sidecar current while ctx is alive: every burst of
// record-file changes triggers a rebuild.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration) error {
	w, err := NewWatcher(m.dir, debounce, func() {
		if _, err := m.Regenerate(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("index rebuild failed", log.Err(err))
		}
	}, m.logger)
	if err != nil {
		return err
	}
	m.logger.Info("watching dataset", log.String("dir", m.dir))
	return w.Run(ctx)
}
