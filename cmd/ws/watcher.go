package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// storeWatcher wakes the run loop when the store file changes. Writes replace
// the file by rename, so the parent directory is watched and events are
// filtered by name. It falls back to polling the modification time when
// fsnotify is unavailable.
type storeWatcher struct {
	path         string
	watcher      *fsnotify.Watcher
	pollInterval time.Duration
	events       chan struct{}
	wg           sync.WaitGroup
	lastMod      time.Time
}

// Debounce window for bursts of events from one write.
const watchDebounce = 100 * time.Millisecond

func newStoreWatcher(storePath string, pollInterval time.Duration) *storeWatcher {
	w := &storeWatcher{
		path:         storePath,
		pollInterval: pollInterval,
		events:       make(chan struct{}, 1),
	}
	if info, err := os.Stat(storePath); err == nil {
		w.lastMod = info.ModTime()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w
	}
	if err := fw.Add(filepath.Dir(storePath)); err != nil {
		_ = fw.Close()
		return w
	}
	w.watcher = fw
	return w
}

// Events receives one value per (debounced) change.
func (w *storeWatcher) Events() <-chan struct{} {
	return w.events
}

// IsPolling reports whether the watcher fell back to polling.
func (w *storeWatcher) IsPolling() bool {
	return w.watcher == nil
}

// Start watches in the background until ctx is done.
func (w *storeWatcher) Start(ctx context.Context) {
	w.wg.Add(1)
	if w.watcher == nil {
		go w.poll(ctx)
		return
	}
	go w.watch(ctx)
}

// Close waits for the background goroutine and releases the watcher. Cancel
// the context passed to Start first.
func (w *storeWatcher) Close() error {
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

func (w *storeWatcher) watch(ctx context.Context) {
	defer w.wg.Done()
	base := filepath.Base(w.path)
	var last time.Time
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// sqlite writes land in -wal and -journal siblings
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if now := time.Now(); now.Sub(last) >= watchDebounce {
				last = now
				w.notify()
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *storeWatcher) poll(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().After(w.lastMod) {
				w.lastMod = info.ModTime()
				w.notify()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *storeWatcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
