package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sleepstars/ollamabridge/internal/logger"
)

// watchDebounce is how long the watcher waits after the last write event
// before reloading, so editors that write in several steps trigger one
// reload instead of a storm.
const watchDebounce = 200 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands every
// valid new configuration to a callback.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *logger.Logger
}

// NewWatcher creates a watcher for the given config file. The parent
// directory is watched rather than the file itself, so atomic
// rename-into-place saves are seen too.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		watcher: fw,
		logger:  logger.GetLogger().WithComponent("config_watcher"),
	}, nil
}

// Watch blocks until the context is cancelled, invoking onChange with each
// validated configuration loaded after a file change. Invalid or unreadable
// content is logged and skipped; the previous configuration stays active.
func (w *Watcher) Watch(ctx context.Context, onChange func(Config)) {
	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.WithError(err).Warn("Ignoring config change")
				continue
			}
			w.logger.Info("Config file changed: port=%d, upstream=%s, timeout=%gs",
				cfg.Port, cfg.OllamaBaseURL, cfg.Timeout)
			onChange(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Config watch error")
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
