package filecon

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher notifies the connection when the inbox file changes. The fsnotify
// implementation is preferred; the polling implementation is the fallback
// for platforms or filesystems without native change notification.
type watcher interface {
	start(path string, onChange func()) error
	stop()
}

// newWatcher returns a change watcher for the inbox file. When forcePoll is
// set, or when the native watcher cannot be created, a polling watcher is
// used instead.
func newWatcher(forcePoll bool, pollInterval time.Duration) watcher {
	if forcePoll {
		return &pollWatcher{interval: pollInterval}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WARNING: native file watcher unavailable (%v), falling back to polling", err)
		return &pollWatcher{interval: pollInterval}
	}
	return &notifyWatcher{inner: fw}
}

// notifyWatcher delivers change events via fsnotify.
type notifyWatcher struct {
	inner *fsnotify.Watcher
	done  chan struct{}
}

func (w *notifyWatcher) start(path string, onChange func()) error {
	// Watch the parent directory: events on the file itself are lost when
	// the file is truncated and recreated by another writer.
	if err := w.inner.Add(filepath.Dir(path)); err != nil {
		return err
	}
	w.done = make(chan struct{})

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-w.inner.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange()
				}
			case err, ok := <-w.inner.Errors:
				if !ok {
					return
				}
				log.Printf("ERROR: inbox watcher: %v", err)
			}
		}
	}()
	return nil
}

func (w *notifyWatcher) stop() {
	if w.done != nil {
		close(w.done)
	}
	_ = w.inner.Close()
}

// pollWatcher checks the inbox file's size and modification time on a fixed
// interval.
type pollWatcher struct {
	interval time.Duration
	done     chan struct{}
}

func (w *pollWatcher) start(path string, onChange func()) error {
	if w.interval <= 0 {
		w.interval = defaultPollInterval
	}
	w.done = make(chan struct{})

	go func() {
		var lastSize int64
		var lastMod time.Time
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if info.Size() != lastSize || info.ModTime() != lastMod {
					lastSize = info.Size()
					lastMod = info.ModTime()
					if info.Size() > 0 {
						onChange()
					}
				}
			}
		}
	}()
	return nil
}

func (w *pollWatcher) stop() {
	if w.done != nil {
		close(w.done)
	}
}
