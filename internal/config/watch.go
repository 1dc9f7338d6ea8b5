package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"orderscout/internal/logging"
)

// Watcher hot-reloads the config file so selector changes (the marketplace
// redesigns its markup regularly) land without a restart. Only the
// selector and timing sections are swapped in; structural settings like
// pool size require a restart.
type Watcher struct {
	path string
	fw   *fsnotify.Watcher

	mu  sync.RWMutex
	cfg *Config

	onReload func(*Config)
	done     chan struct{}
}

// Watch starts watching path. onReload, if non-nil, runs after every
// successful reload with the updated config.
func Watch(path string, initial *Config, onReload func(*Config)) (*Watcher, error) {
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
		fw:       fw,
		cfg:      initial,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the latest loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			fresh, err := Load(w.path)
			if err != nil {
				logging.Boot("config reload skipped: %v", err)
				continue
			}
			w.mu.Lock()
			// Selector and timing sections only; the rest of the running
			// system was built from the original config.
			updated := *w.cfg
			updated.Selectors = fresh.Selectors
			updated.Timing = fresh.Timing
			w.cfg = &updated
			w.mu.Unlock()
			logging.Boot("config reloaded from %s", w.path)
			if w.onReload != nil {
				w.onReload(w.Current())
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logging.Boot("config watcher error: %v", err)
		}
	}
}
