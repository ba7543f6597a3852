// Package playlist provides real-time folder monitoring for media
// directories, maintaining a sorted queue of media files that the player
// switches through.
package playlist

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"player-session/internal/media"
)

// OnChangeFunc is a callback invoked when the playlist changes.
// It receives the updated sorted list of absolute file paths.
type OnChangeFunc func(files []string)

// Watcher monitors a directory for file system events and maintains
// a sorted list of playable media files.
type Watcher struct {
	mu       sync.RWMutex
	logger   *zap.SugaredLogger
	dir      string
	files    []string
	watcher  *fsnotify.Watcher
	onChange OnChangeFunc
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWatcher creates a new Watcher for the given directory.
// The onChange callback fires whenever the file list changes.
func NewWatcher(dir string, onChange OnChangeFunc, logger *zap.SugaredLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		logger:   logger.Named("playlist").With("dir", dir),
		dir:      dir,
		watcher:  fw,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}

	// Perform initial scan before starting the watch loop.
	w.scan()

	return w, nil
}

// scan reads the directory and builds the sorted file list.
// It reports whether the list changed.
func (w *Watcher) scan() bool {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warnw("Scan failed", "error", err)
		return false
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if media.IsSupported(entry.Name()) {
			files = append(files, filepath.Join(w.dir, entry.Name()))
		}
	}

	sort.Strings(files)

	w.mu.Lock()
	changed := !slices.Equal(w.files, files)
	w.files = files
	w.mu.Unlock()

	w.logger.Debugw("Scanned media files", "count", len(files), "changed", changed)
	return changed
}

// Files returns the current sorted list of media file paths.
func (w *Watcher) Files() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	dst := make([]string, len(w.files))
	copy(dst, w.files)
	return dst
}

// Start begins watching the directory for changes. It blocks until
// Stop() is called or the watcher encounters a fatal error.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	w.logger.Info("Monitoring playlist directory")

	for {
		select {
		case <-w.stopCh:
			w.logger.Debug("Watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if isRelevantEvent(event) {
				w.logger.Debugw("Directory event", "op", event.Op.String(), "name", event.Name)
				if w.scan() && w.onChange != nil {
					w.onChange(w.Files())
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("Watcher error", "error", err)
		}
	}
}

// Stop halts the watcher loop and releases the fsnotify resources.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

// isRelevantEvent filters for file create, remove, and rename events
// that would change the playlist contents.
func isRelevantEvent(e fsnotify.Event) bool {
	return e.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

// Next returns the entry after current, wrapping around. When current is
// no longer in files the first entry is returned. It returns "" for an
// empty list.
func Next(files []string, current string) string {
	if len(files) == 0 {
		return ""
	}
	i := lo.IndexOf(files, current)
	return files[(i+1)%len(files)]
}
