package highlight_file

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// watchFile calls render once, then again after every change to path, until
// ctx is done. The parent directory is watched rather than the file because
// many editors save by renaming a new file over the old one.
func watchFile(ctx context.Context, path string, render func() error) error {
	logger := zerolog.Ctx(ctx)

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Errorf("resolving %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	if err := render(); err != nil {
		return err
	}
	logger.Info().Str("file", path).Msg("watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug().Str("op", ev.Op.String()).Msg("file changed")
			if err := render(); err != nil {
				logger.Error().Err(err).Msg("re-rendering")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return errors.Errorf("watching %s: %w", path, err)
		}
	}
}
