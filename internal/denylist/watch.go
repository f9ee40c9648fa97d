package denylist

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits after the last write.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a denylist file when it changes on disk. The parent
// directory is watched so editors that replace the file by rename, and a
// file created after startup, are both picked up.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onReload func(*Denylist)
	log      zerolog.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher for path. onReload receives each successfully
// parsed denylist; a corrupt file is logged and the previous denylist stays.
func NewWatcher(path string, log zerolog.Logger, onReload func(*Denylist)) (*Watcher, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return nil, fmt.Errorf("denylist watcher: no path")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		watcher:  w,
		path:     filepath.Clean(path),
		onReload: onReload,
		log:      log,
		debounce: DefaultDebounce,
	}, nil
}

// Run watches for changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("denylist watcher error")
		}
	}
}

func (w *Watcher) reload() {
	dl, err := LoadFile(w.path)
	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("denylist reload failed, keeping previous patterns")
		return
	}
	w.log.Info().Str("path", w.path).Msg("denylist reloaded")
	w.onReload(dl)
}
