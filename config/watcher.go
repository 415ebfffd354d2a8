package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const DefaultDebounce = 300 * time.Millisecond

// Watcher reloads the config file whenever it changes and hands the new
// config to every registered handler. Bursts of writes are debounced.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   hclog.Logger
	debounce time.Duration

	lock     sync.Mutex
	handlers []func(*Config)

	threadShouldStop chan struct{}
	waitGroup        sync.WaitGroup
	stopOnce         sync.Once
}

func NewWatcher(path string, logger hclog.Logger) (*Watcher, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: expanding path")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "config: creating watcher")
	}

	return &Watcher{
		path:             filepath.Clean(expanded),
		watcher:          w,
		logger:           logger,
		debounce:         DefaultDebounce,
		threadShouldStop: make(chan struct{}),
	}, nil
}

func (cw *Watcher) OnChange(handler func(*Config)) {
	cw.lock.Lock()
	defer cw.lock.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// Start watches the directory holding the file, so that editors replacing
// the file by rename are noticed too.
func (cw *Watcher) Start() error {
	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return errors.Wrapf(err, "config: watching %s", cw.path)
	}

	cw.waitGroup.Add(1)
	go cw.watchThread()

	cw.logger.Info("config watcher started", "path", cw.path)
	return nil
}

func (cw *Watcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.threadShouldStop)
		cw.watcher.Close()
		cw.waitGroup.Wait()
	})
}

func (cw *Watcher) watchThread() {
	defer cw.waitGroup.Done()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-cw.threadShouldStop:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(cw.debounce, cw.reload)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("config watcher error", "error", err)
		}
	}
}

func (cw *Watcher) reload() {
	cfg, err := Load(cw.path)
	if err != nil {
		cw.logger.Error("config reload failed, keeping the current config", "error", err)
		return
	}

	cw.lock.Lock()
	handlers := make([]func(*Config), len(cw.handlers))
	copy(handlers, cw.handlers)
	cw.lock.Unlock()

	for _, handler := range handlers {
		handler(cfg)
	}
	cw.logger.Info("config reloaded", "path", cw.path)
}
