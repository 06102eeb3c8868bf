package config

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher watches the config file for changes and invokes callback with
// the freshly reloaded Config, debouncing write bursts so editors that
// write-then-rename don't trigger a double reload (§10.2).
type Watcher struct {
	path     string
	callback func(*Config)

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	stopCh  chan struct{}
}

// NewWatcher starts watching path and delivers reloads to callback until
// Stop is called.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		callback: callback,
		watcher:  fw,
		stopCh:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watch error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("[config] reload of %s failed: %v", w.path, err)
		return
	}
	log.Printf("[config] reloaded %s", w.path)
	w.callback(cfg)
}

// Stop halts the watcher and releases its underlying inotify handle.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
