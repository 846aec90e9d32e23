// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package freshness

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long source files must be quiet before a
// change triggers a refresh.
const DefaultWatchDebounce = 2 * time.Second

// ErrNoLocalSources is returned when no configured source is a local file.
var ErrNoLocalSources = errors.New("no local source files to watch")

// LocalSourcePaths returns the local file paths among the configured
// sources. Plain paths and file:// URLs qualify; http(s) URLs do not.
func LocalSourcePaths(src SourceDescriptor) []string {
	var out []string
	for _, raw := range []string{src.NodesURL, src.EdgesURL} {
		if p, ok := localPath(raw); ok {
			out = append(out, p)
		}
	}
	return out
}

func localPath(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil || u.Path == "" {
			return "", false
		}
		return filepath.Clean(u.Path), true
	}
	if strings.Contains(raw, "://") {
		return "", false
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", false
	}
	return abs, true
}

// SourceWatcher triggers a callback when local source files change.
//
// # Description
//
// Watches the parent directories of the source files, since editors and
// copy tools often replace files by rename. Events for other files are
// ignored. Changes are debounced so a multi-megabyte copy produces one
// callback.
//
// # Thread Safety
//
// Safe for concurrent use. The callback runs on the watcher goroutine.
type SourceWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	dirs     []string
	onChange func()
	debounce time.Duration
	logger   *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewSourceWatcher creates a watcher for paths. debounce <= 0 uses
// DefaultWatchDebounce.
func NewSourceWatcher(paths []string, onChange func(), debounce time.Duration, logger *slog.Logger) (*SourceWatcher, error) {
	if len(paths) == 0 {
		return nil, ErrNoLocalSources
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	files := make(map[string]struct{}, len(paths))
	seenDirs := make(map[string]struct{})
	var dirs []string
	for _, p := range paths {
		p = filepath.Clean(p)
		files[p] = struct{}{}
		dir := filepath.Dir(p)
		if _, ok := seenDirs[dir]; !ok {
			seenDirs[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}

	return &SourceWatcher{
		watcher:  w,
		files:    files,
		dirs:     dirs,
		onChange: onChange,
		debounce: debounce,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Watching stops when ctx is done or Stop is called.
func (w *SourceWatcher) Start(ctx context.Context) error {
	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	go w.loop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *SourceWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *SourceWatcher) relevant(event fsnotify.Event) bool {
	if _, ok := w.files[filepath.Clean(event.Name)]; !ok {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *SourceWatcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("source watcher error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			if w.onChange != nil {
				w.onChange()
			}
		}
	}
}

// WatchSources starts a SourceWatcher on the local source files that
// queues a refresh on change. The caller stops it.
func (m *Manager) WatchSources(ctx context.Context, debounce time.Duration) (*SourceWatcher, error) {
	w, err := NewSourceWatcher(LocalSourcePaths(m.cfg.Source), func() {
		if m.RequestRefresh(TriggerWatch) {
			m.logger.Info("source files changed, refresh queued")
		}
	}, debounce, m.logger)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, err
	}
	return w, nil
}
