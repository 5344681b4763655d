// Package watch detects external modification of a loaded archive.
//
// In-place saves replace the archive by rename, and other programs may
// rewrite it entirely, so the watcher monitors the archive's parent
// directory and filters events down to the archive path. Rapid event
// bursts are debounced into a single notification.
package watch

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces event bursts within this window.
const DefaultDebounce = 100 * time.Millisecond

// ErrClosed is returned when operating on a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// Event is one debounced external-change notification.
type Event struct {
	Path string
	Time time.Time
}

// Watcher reports external changes to a single archive file.
type Watcher struct {
	fw       *fsnotify.Watcher
	path     string
	debounce time.Duration

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// New watches the archive at path. debounce <= 0 uses DefaultDebounce.
func New(path string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fw:       fw,
		path:     abs,
		debounce: debounce,
		events:   make(chan Event, 1),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Events delivers debounced change notifications. The channel is closed
// when the watcher is closed.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close releases the OS watcher and closes the event channel.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}

// loop filters raw events to the archive path and debounces them.
func (w *Watcher) loop() {
	defer close(w.events)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			select {
			case w.events <- Event{Path: w.path, Time: time.Now()}:
			default:
				// Receiver is behind; the pending event already
				// signals a change.
			}
			timer = nil
			timerC = nil

		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
		}
	}
}
