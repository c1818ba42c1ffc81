package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hexewm/hexe/internal/logging"
)

// Watcher watches settings.json and floats.yaml and calls onChange after a
// short debounce once either file is written.
type Watcher struct {
	watcher    *fsnotify.Watcher
	onChange   func()
	debounce   time.Duration
	stop       chan struct{}
	mu         sync.Mutex
	stopped    bool
	timer      *time.Timer
}

// NewWatcher watches ConfigDir for changes to the settings/float files.
func NewWatcher(onChange func()) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(ConfigDir); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		onChange: onChange,
		debounce: 150 * time.Millisecond,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins the watch loop in the background.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			base := ev.Name
			if !(endsWith(base, settingsFileName) || endsWith(base, floatsFileName)) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Printf("config watcher error: %v", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

// Stop stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stop)
	w.watcher.Close()
}

func endsWith(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
