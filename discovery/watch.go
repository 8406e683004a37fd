package discovery

// This file contains the source tree watcher re-running discovery when
// test sources or the build description change.

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/perfgo/cmaketest/cmake"
	"github.com/perfgo/cmaketest/scanner"
)

// DefaultDebounce is how long the tree has to be quiet before a rescan
const DefaultDebounce = 300 * time.Millisecond

// Watch runs discovery once and again after every burst of relevant file
// changes, until ctx is done. Rescan failures are logged and do not stop
// the watch.
func (d *Discovery) Watch(ctx context.Context, window time.Duration, onChange func(*Result)) error {
	if window <= 0 {
		window = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := d.addRecursive(watcher, d.scanRoot); err != nil {
		return err
	}
	if d.scanRoot != d.root {
		// the build description lives at the project root
		if err := watcher.Add(d.root); err != nil {
			d.logger.Warn().Err(err).Str("dir", d.root).Msg("Failed to watch project root")
		}
	}

	var mu sync.Mutex
	rescan := func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		r, err := d.Discover(ctx)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to rediscover tests")
			return
		}
		onChange(r)
	}

	r, err := d.Discover(ctx)
	if err != nil {
		return err
	}
	onChange(r)

	debounced := debounce.New(window)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !d.ignoreDir(event.Name) {
					if err := d.addRecursive(watcher, event.Name); err != nil {
						d.logger.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch directory")
					}
				}
			}
			if event.Has(fsnotify.Chmod) || !d.relevant(event.Name) {
				continue
			}
			d.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Source change")
			debounced(rescan)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (d *Discovery) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			// vanished or unreadable
			return nil
		}
		if !e.IsDir() {
			return nil
		}
		if path != root && d.ignoreDir(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// ignoreDir skips what scans skip; hidden directories include the history
// directory.
func (d *Discovery) ignoreDir(path string) bool {
	return scanner.IgnoreDir(path)
}

// relevant reports whether a changed path can alter the discovery result.
func (d *Discovery) relevant(path string) bool {
	if filepath.Base(path) == cmake.BuildDescriptionFile {
		return true
	}
	rel, err := filepath.Rel(d.scanRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	glob := d.glob
	if glob == "" {
		glob = scanner.DefaultGlob
	}
	ok, err := doublestar.Match(glob, filepath.ToSlash(rel))
	return err == nil && ok
}
