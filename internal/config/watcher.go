package config

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reloads the configuration file when it changes on disk and hands
// each successfully loaded Config to a callback. Invalid intermediate states
// are logged and skipped; the previous configuration stays in effect.
type Watcher struct {
	path     string
	onChange func(*Config)

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewWatcher prepares a watcher for configFile. Start begins watching.
func NewWatcher(configFile string, onChange func(*Config)) (*Watcher, error) {
	if configFile == "" {
		return nil, errors.New("config watcher needs a file path")
	}
	if onChange == nil {
		return nil, errors.New("config watcher needs a change callback")
	}
	return &Watcher{
		path:     configFile,
		onChange: onChange,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins watching the configuration file in a background goroutine.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the parent directory: editors and atomic writes replace the
	// file, which silently drops a watch added on the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Infof("Config file changed (%s), reloading...", event.Name)
			// Simple debounce: editors emit bursts of events per save.
			time.Sleep(100 * time.Millisecond)
			w.drain()

			cfg, err := LoadConfig(w.path)
			if err != nil {
				log.Errorf("Failed to reload config, keeping previous: %v", err)
				continue
			}
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("Config watcher error: %v", err)
		case <-w.stop:
			return
		}
	}
}

// drain discards events queued during the debounce window. The reload that
// follows reads the file as it is now, so the drained events carry nothing.
func (w *Watcher) drain() {
	for {
		select {
		case <-w.watcher.Events:
		default:
			return
		}
	}
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		select {
		case <-w.stop:
		default:
			close(w.stop)
		}
		w.watcher.Close()
		w.watcher = nil
	}
}
