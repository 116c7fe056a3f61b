package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDuration = 100 * time.Millisecond

// Watch reloads documents edited on disk until ctx ends. Events are
// debounced; files that match our own last write are ignored, and a
// document that fails to parse or validate leaves the loaded copy in
// place.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("store: watcher: %w", err)
	}
	defer watcher.Close()

	// Editors and our own writes replace files by rename, so watch the
	// directory rather than the files.
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("store: watch %s: %w", s.dir, err)
	}

	timer := newDebounceTimer()
	defer timer.Stop()
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if name != PresetsFile && name != CueStackFile {
				continue
			}
			pending[name] = true
			resetDebounceTimer(timer)

		case <-timer.C:
			for name := range pending {
				s.reload(name)
			}
			clear(pending)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (s *Store) reload(name string) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		s.log.Warn("reload skipped", slog.String("file", name), slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	if bytes.Equal(data, s.written[name]) {
		s.mu.Unlock()
		return
	}
	switch name {
	case PresetsFile:
		doc, err := decodePresets(data)
		if err != nil {
			s.mu.Unlock()
			s.log.Warn("reload rejected", slog.String("file", name), slog.String("error", err.Error()))
			return
		}
		s.presets = doc
	case CueStackFile:
		st, err := decodeCueStack(data, s.log)
		if err != nil {
			s.mu.Unlock()
			s.log.Warn("reload rejected", slog.String("file", name), slog.String("error", err.Error()))
			return
		}
		s.stack = st
	}
	s.written[name] = data
	s.mu.Unlock()

	s.log.Info("reloaded from disk", slog.String("file", name))
	s.changed(name)
}

func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	return timer
}

func resetDebounceTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(debounceDuration)
}
