// Package watcher reports edits to a table file made outside the service.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileWatcher watches one file through its parent directory, so that files
// replaced by rename keep being tracked
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *zap.Logger
}

func New(path string, logger *zap.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &FileWatcher{watcher: w, path: abs, logger: logger}, nil
}

// Run calls onChange for every write, create or rename of the file until ctx
// is done. It closes the watcher on return.
func (w *FileWatcher) Run(ctx context.Context, onChange func()) error {
	defer w.watcher.Close()

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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Info("table file changed", zap.String("file", w.path), zap.String("op", event.Op.String()))
			onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}
