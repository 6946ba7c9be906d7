package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch calls fn with the freshly loaded config every time the file at path is
// written, until ctx is done. Documents that fail to load are logged and skipped.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// editors replace files, so watch the directory rather than the file itself
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Name != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}

				log.WithField("path", path).WithField("event", event.Op.String()).Debug("config file changed")

				c, err := Load(path)
				if err != nil {
					log.WithField("path", path).WithField("error", err).Warn("ignoring invalid config update")
					continue
				}

				fn(c)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}

				log.WithField("path", path).WithField("error", err).Error("config watch failed")
			}
		}
	}()

	return nil
}
