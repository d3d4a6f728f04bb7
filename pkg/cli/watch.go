package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/sprocket/pkg/config"
	"github.com/platinummonkey/sprocket/pkg/observability"
)

// watchAndCompile recompiles the full pipeline whenever a .proto file under
// the source or proto path changes. Each recompile is a fresh run; no state
// is carried between passes.
func watchAndCompile(cfg *config.Config, logger *observability.Logger, delaySeconds int) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range append(append([]string{}, cfg.SourcePath...), cfg.ProtoPath...) {
		if err := watchTree(watcher, root); err != nil {
			logger.WithError(err).Warnf("not watching %s", root)
		}
	}

	compile := func() {
		if err := compileOnce(cfg, logger); err != nil {
			logger.WithError(err).Error("compilation failed")
		}
	}
	compile()

	delay := time.Duration(delaySeconds) * time.Second
	var pending *time.Timer
	logger.Info("watching for proto file changes")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".proto" {
				// a new directory may bring proto files with it
				if info, err := os.Stat(event.Name); err != nil || !info.IsDir() {
					continue
				}
				watchTree(watcher, event.Name)
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(delay, compile)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("watch error")
		}
	}
}

// watchTree registers a directory and its subdirectories with the watcher.
// Archive and single-file roots are watched as plain paths.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
