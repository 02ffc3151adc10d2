package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Library is what the watcher needs from the library service.
type Library interface {
	ListBooks(ctx context.Context) ([]models.Book, error)
	DeleteByPath(ctx context.Context, path string) (bool, error)
}

// LibraryWatcher tombstones books whose files are removed or renamed away
// while the daemon runs.
type LibraryWatcher struct {
	watcher *fsnotify.Watcher
	library Library
	log     logging.Logger

	mu   sync.Mutex
	dirs map[string]struct{}
}

func NewLibraryWatcher(library Library, log logging.Logger) (*LibraryWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &LibraryWatcher{watcher: w, library: library, log: log.With("component", "watcher"), dirs: map[string]struct{}{}}, nil
}

// Watch adds dir unless already watched.
func (w *LibraryWatcher) Watch(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[abs]; ok {
		return nil
	}
	if err := w.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	w.dirs[abs] = struct{}{}
	return nil
}

// WatchBooks watches the directory of every known book.
func (w *LibraryWatcher) WatchBooks(ctx context.Context) error {
	books, err := w.library.ListBooks(ctx)
	if err != nil {
		return err
	}
	for _, b := range books {
		if err := w.Watch(filepath.Dir(b.PubFile)); err != nil {
			w.log.Warn(ctx, "cannot watch book directory", "path", b.PubFile, "error", err)
		}
	}
	return nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *LibraryWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			found, err := w.library.DeleteByPath(ctx, filepath.Clean(ev.Name))
			if err != nil {
				w.log.Error(ctx, "cannot tombstone vanished book", "path", ev.Name, "error", err)
				continue
			}
			if found {
				w.log.Info(ctx, "book file vanished", "path", ev.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, "watcher error", "error", err)
		}
	}
}
