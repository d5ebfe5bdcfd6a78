package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay debounces bursts of write events from editors.
const reloadDelay = 500 * time.Millisecond

// Watcher reloads a catalog file when it changes on disk.
type Watcher struct {
	path     string
	logger   zerolog.Logger
	onChange func(Definition)

	mu      sync.Mutex
	timer   *time.Timer
	watcher *fsnotify.Watcher
}

// Watch starts watching path and calls onChange with every successfully
// loaded revision. Invalid revisions are logged and ignored so the last
// good catalog stays in effect. Watching stops when ctx is done.
func Watch(ctx context.Context, path string, logger zerolog.Logger, onChange func(Definition)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors often replace files instead of writing them.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		logger:   logger.With().Str("component", "catalog-watcher").Logger(),
		onChange: onChange,
		watcher:  fw,
	}

	go w.processEvents(ctx)

	w.logger.Info().Str("path", path).Msg("Watching catalog for changes")
	return w, nil
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer func() {
		_ = w.watcher.Close()
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Catalog file changed")

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(reloadDelay, w.reload)
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Catalog watcher error")
		}
	}
}

func (w *Watcher) reload() {
	def, err := Load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Catalog reload failed, keeping previous catalog")
		return
	}

	w.logger.Info().
		Str("database", def.DatabaseID).
		Int("collections", len(def.Collections)).
		Msg("Catalog reloaded")
	w.onChange(def)
}
