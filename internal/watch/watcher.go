// internal/watch/watcher.go

// Package watch runs the bundle intake loop: an agent (or a human) drops
// bundle files into a directory and each one is applied transactionally as
// it lands. Applies are serialized; two bundles never run concurrently
// against the store.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dogs/internal/apply"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounce interval between the last write event on a bundle file and the
// apply attempt, so half-written files are not picked up.
const settleDelay = 200 * time.Millisecond

// Watcher applies bundle files dropped into an intake directory.
type Watcher struct {
	dir     string
	applier *apply.Applier
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	done    chan struct{}

	// applyMu serializes applies; the store forbids concurrent applier
	// runs against overlapping paths.
	applyMu sync.Mutex
}

func NewWatcher(dir string, applier *apply.Applier, logger *zap.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating intake directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching intake directory: %w", err)
	}

	w := &Watcher{
		dir:     dir,
		applier: applier,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}

	go w.watchLoop()
	return w, nil
}

// Close stops the intake loop. In-flight applies run to completion; apply
// has no cancellation point.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isBundleFile(event.Name) {
		return
	}

	// Restart the settle timer on every write to the same file.
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[event.Name]; ok {
		timer.Stop()
	}
	path := event.Name
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.applyBundle(path)
	})
}

// applyBundle runs one intake apply. Errors are logged, not propagated; a
// bad bundle must not stop the intake loop.
func (w *Watcher) applyBundle(path string) {
	w.applyMu.Lock()
	defer w.applyMu.Unlock()

	result, err := w.applier.Apply(path, "")
	if err != nil {
		w.logger.Error("intake apply failed",
			zap.String("bundle", path),
			zap.Error(err),
		)
		return
	}
	if !result.Success {
		w.logger.Warn("intake bundle rejected",
			zap.String("bundle", path),
			zap.String("message", result.Message),
		)
		return
	}

	w.logger.Info("intake bundle applied",
		zap.String("bundle", path),
		zap.Int("applied", result.AppliedCount),
		zap.String("checkpoint", result.CheckpointID),
	)

	// Applied bundles are moved aside so a restart does not replay them.
	appliedPath := path + ".applied"
	if err := os.Rename(path, appliedPath); err != nil {
		w.logger.Warn("could not archive applied bundle",
			zap.String("bundle", path),
			zap.Error(err),
		)
	}
}

func isBundleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".dogs" || ext == ".bundle"
}
