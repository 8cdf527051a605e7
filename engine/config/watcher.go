package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/umbra/engine/core"
)

// Watcher re-reads a config file whenever it is written and publishes the result on
// Updates. Files that fail to parse are reported on Errors and the last good config
// stays in effect.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher

	updates chan *Config
	errors  chan error
	done    chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWatcher(path string) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, core.Wrap(err, "failed to create config watcher")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsWatch.Close()
		return nil, core.Wrapf(err, "failed to resolve %s", path)
	}
	// editors replace the file on save, so the parent directory is what gets watched
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, core.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}

	w := &Watcher{
		path:     abs,
		fsnotify: fsWatch,
		updates:  make(chan *Config, 1),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

func (w *Watcher) Updates() <-chan *Config { return w.updates }

func (w *Watcher) Errors() <-chan error { return w.errors }

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.publishError(err)
				continue
			}
			w.publish(cfg)
		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			w.publishError(err)
		case <-w.done:
			return
		}
	}
}

// publish keeps only the newest config if the reader has fallen behind.
func (w *Watcher) publish(cfg *Config) {
	for {
		select {
		case w.updates <- cfg:
			return
		case <-w.done:
			return
		default:
		}
		select {
		case <-w.updates:
		default:
		}
	}
}

func (w *Watcher) publishError(err error) {
	select {
	case w.errors <- err:
	default:
		core.LogWarn("config watcher dropped error: %s", err)
	}
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsnotify.Close()
		w.wg.Wait()
	})
	return err
}
