package router

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch loads the keyword file at path and reloads it on every change until
// ctx is done. The parent directory is watched so editors that replace the
// file on save are picked up. A bad file is logged and the previous keywords stay.
func (r *Router) Watch(ctx context.Context, path string) error {
	if err := r.reload(path); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("keywords watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.reload(path); err != nil {
				r.logger.Warn("keywords reload failed", zap.String("path", path), zap.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("keywords watcher error", zap.Error(err))
		}
	}
}

func (r *Router) reload(path string) error {
	k, err := LoadKeywords(path)
	if err != nil {
		return err
	}
	r.SetKeywords(k)
	r.logger.Info("routing keywords loaded",
		zap.String("path", path),
		zap.Int("alternative", len(k.Alternative)),
		zap.Int("summary", len(k.Summary)),
	)
	return nil
}
