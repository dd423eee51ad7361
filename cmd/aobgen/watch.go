package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Events closer together than this trigger a single regeneration. Copying a
// release onto disk produces a burst of writes.
const watchDebounce = 500 * time.Millisecond

// watch regenerates whenever the definition file or a directory holding
// candidate images changes, until ctx is done. A failed regeneration is
// logged and the previous output is kept.
func watch(ctx context.Context, gen generation, run func() (generation, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	addWatchDirs(w, gen)
	slog.Info("watching for changes", "directories", len(w.WatchList()))
	return watchLoop(ctx, w, gen, run)
}

func addWatchDirs(w *fsnotify.Watcher, gen generation) {
	for _, dir := range watchDirs(configPath, gen.paths) {
		if err := w.Add(dir); err != nil {
			slog.Warn("failed to watch directory", "path", dir, "error", err)
		}
	}
}

// watchLoop coalesces the events of w and calls run once per burst.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, gen generation, run func() (generation, error)) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, gen.output, gen.cache) {
				continue
			}
			slog.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)

		case <-fire:
			fire = nil
			next, err := run()
			if err != nil {
				slog.Error("regeneration failed", "error", err)
				continue
			}
			gen = next
			addWatchDirs(w, gen)
		}
	}
}

// relevant reports whether ev may change the generated output. Files written
// by a regeneration itself (the output, its temporary files and the scan
// cache) are ignored so that one regeneration does not trigger another.
func relevant(ev fsnotify.Event, ignore ...string) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	for _, p := range ignore {
		if p != "" && name == filepath.Clean(p) {
			return false
		}
	}
	return !strings.HasPrefix(filepath.Base(name), ".aobgen-")
}

// watchDirs returns the existing directories holding the definition file and
// the candidate images, deduplicated and sorted.
func watchDirs(cfgPath string, paths []string) []string {
	var dirs []string
	for _, p := range append([]string{cfgPath}, paths...) {
		dir := filepath.Clean(filepath.Dir(p))
		if slices.Contains(dirs, dir) {
			continue
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			continue
		}
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	return dirs
}
