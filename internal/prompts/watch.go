package prompts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"genimg/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-runs the extractor whenever a scene script under SourceRoot is
// written. Rapid saves of the same file are debounced.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	extractor   *Extractor
	debounceDur time.Duration
	pending     map[string]*time.Timer
	onResult    func(Result, error)
	doneCh      chan struct{}
}

// NewWatcher creates a watcher for e. onResult, if non-nil, is called after
// each regeneration.
func NewWatcher(e *Extractor, debounce time.Duration, onResult func(Result, error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		watcher:     fw,
		extractor:   e,
		debounceDur: debounce,
		pending:     make(map[string]*time.Timer),
		onResult:    onResult,
		doneCh:      make(chan struct{}),
	}, nil
}

// Start watches SourceRoot and every existing subdirectory, then runs until ctx
// is cancelled. New subdirectories are picked up as they appear. When Start
// fails the watcher is released and Done is already closed.
func (w *Watcher) Start(ctx context.Context) error {
	log := logging.Get(logging.CategoryPrompts)

	if err := w.watchRoot(); err != nil {
		_ = w.watcher.Close()
		close(w.doneCh)
		return fmt.Errorf("watch %s: %w", w.extractor.SourceRoot, err)
	}
	log.Info("watching %s for %s changes", w.extractor.SourceRoot, SceneFile)

	go w.run(ctx)
	return nil
}

func (w *Watcher) watchRoot() error {
	if err := os.MkdirAll(w.extractor.SourceRoot, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.extractor.SourceRoot); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.extractor.SourceRoot)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addDir(filepath.Join(w.extractor.SourceRoot, e.Name()))
		}
	}
	return nil
}

// Done is closed once the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) addDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		logging.Get(logging.CategoryPrompts).Warn("watch %s: %v", dir, err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	log := logging.Get(logging.CategoryPrompts)
	defer close(w.doneCh)
	defer w.stopTimers()
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && filepath.Dir(ev.Name) == filepath.Clean(w.extractor.SourceRoot) {
			w.addDir(ev.Name)
			if _, err := os.Stat(filepath.Join(ev.Name, SceneFile)); err == nil {
				w.schedule(filepath.Base(ev.Name))
			}
			return
		}
	}
	if filepath.Base(ev.Name) != SceneFile {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	w.schedule(filepath.Base(filepath.Dir(ev.Name)))
}

func (w *Watcher) schedule(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[dir]; ok {
		t.Reset(w.debounceDur)
		return
	}
	w.pending[dir] = time.AfterFunc(w.debounceDur, func() {
		w.mu.Lock()
		delete(w.pending, dir)
		w.mu.Unlock()

		path, n, err := w.extractor.Process(dir)
		if err != nil {
			logging.Get(logging.CategoryPrompts).Warn("regenerate %s: %v", dir, err)
		}
		if w.onResult != nil {
			w.onResult(Result{Dir: dir, Path: path, Count: n}, err)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir, t := range w.pending {
		t.Stop()
		delete(w.pending, dir)
	}
}
