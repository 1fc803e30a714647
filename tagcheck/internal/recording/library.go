package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNotFound is returned by Library.Get for an unknown recording name.
var ErrNotFound = errors.New("recording: not found")

// Library serves the recordings stored as *.json files in one directory,
// keyed by file name without extension. Files that fail to decode are
// logged and skipped.
type Library struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	scripts map[string]*Script
}

// NewLibrary loads every recording in dir.
func NewLibrary(dir string, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Library{dir: dir, logger: logger}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads the directory and swaps the whole set atomically.
func (l *Library) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("recording: read dir: %w", err)
	}
	scripts := make(map[string]*Script)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			l.logger.Warn("recording: read failed", "file", e.Name(), "error", err)
			continue
		}
		s, err := Parse(data)
		if err != nil {
			l.logger.Warn("recording: skipped", "file", e.Name(), "error", err)
			continue
		}
		scripts[strings.TrimSuffix(e.Name(), ".json")] = s
	}

	l.mu.Lock()
	l.scripts = scripts
	l.mu.Unlock()
	l.logger.Debug("recording: library loaded", "dir", l.dir, "count", len(scripts))
	return nil
}

// Get returns the recording stored under name.
func (l *Library) Get(name string) (*Script, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.scripts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s, nil
}

// Names lists the loaded recordings in lexical order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.scripts))
	for n := range l.scripts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Watch reloads the library when a file in the directory is written,
// created, removed or renamed. Reloads are debounced by 500ms. Blocks until
// ctx is cancelled.
func (l *Library) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("recording: new watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(l.dir); err != nil {
		return fmt.Errorf("recording: watch %q: %w", l.dir, err)
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				if err := l.Reload(); err != nil {
					l.logger.Error("recording: reload failed", "error", err)
				}
			})

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("recording: watcher error", "error", err)
		}
	}
}
