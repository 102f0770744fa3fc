// Package watch keeps a tree split while the schema generator rewrites it.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/erisprotocol/contracts-tokenfactory/internal/splitter"
	"github.com/erisprotocol/contracts-tokenfactory/kit/colorlog"
	"github.com/fsnotify/fsnotify"
)

type Options struct {
	Root       string
	Exclusions splitter.Exclusions
	Debounce   time.Duration // Default: 150ms
	Logger     *slog.Logger
}

// Watcher feeds created and rewritten .json files under Root to a Splitter.
type Watcher struct {
	opts     Options
	log      *slog.Logger
	split    *splitter.Splitter
	fsWatch  *fsnotify.Watcher
	absRoot  string
	watched  sync.Map // absolute dir -> struct{}
	closeErr error
	once     sync.Once
}

func New(s *splitter.Splitter, opts Options) (*Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = colorlog.New("watch")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 150 * time.Millisecond
	}
	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		opts:    opts,
		log:     opts.Logger,
		split:   s,
		fsWatch: fsWatch,
		absRoot: absRoot,
	}, nil
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.once.Do(func() { w.closeErr = w.fsWatch.Close() })
	return w.closeErr
}

// Run watches the tree until ctx is cancelled or the watcher is closed.
// Failures while splitting a document are logged and do not stop the watch.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.AddDir(w.absRoot); err != nil {
		return err
	}

	deb := NewDebouncer(w.opts.Debounce, func(events []fsnotify.Event) {
		w.handle(ctx, events)
	})
	defer deb.Stop()

	w.log.Info("Watching for schema changes", "root", w.absRoot)
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.fsWatch.Events:
			if !ok {
				return nil
			}
			if isChmodOnly(evt) {
				continue
			}
			deb.Add(evt)
		case err, ok := <-w.fsWatch.Errors:
			if !ok {
				return nil
			}
			w.log.Error("Watcher error", "error", err)
		}
	}
}

// AddDir watches root and every non-excluded directory below it.
func (w *Watcher) AddDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		if path != w.absRoot && w.excluded(path) {
			return filepath.SkipDir
		}
		if _, loaded := w.watched.LoadOrStore(path, struct{}{}); loaded {
			return nil
		}
		if err := w.fsWatch.Add(path); err != nil {
			w.watched.Delete(path)
			return err
		}
		return nil
	})
}

func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.absRoot, path)
	if err != nil {
		return false
	}
	return w.opts.Exclusions.Excluded(rel)
}

func (w *Watcher) handle(ctx context.Context, events []fsnotify.Event) {
	w.removeStale()
	for _, evt := range events {
		if ctx.Err() != nil {
			return
		}
		info, err := os.Stat(evt.Name)
		if err != nil {
			continue
		}

		if info.IsDir() {
			if !evt.Has(fsnotify.Create) || w.excluded(evt.Name) {
				continue
			}
			if err := w.AddDir(evt.Name); err != nil {
				w.log.Error("Failed to watch directory", "path", evt.Name, "error", err)
				continue
			}
			// Files may have landed before the watch was added.
			w.processTree(ctx, evt.Name)
			continue
		}

		if splitter.IsCandidate(evt.Name) && (evt.Has(fsnotify.Create) || evt.Has(fsnotify.Write)) {
			w.process(ctx, evt.Name)
		}
	}
}

func (w *Watcher) processTree(ctx context.Context, dir string) {
	for path, err := range splitter.TraverseUnder(w.absRoot, dir, w.opts.Exclusions) {
		if err != nil {
			w.log.Error("Failed to scan directory", "path", path, "error", err)
			continue
		}
		if splitter.IsCandidate(path) {
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	res, err := w.split.Process(ctx, path)
	switch {
	case err != nil:
		w.log.Error("Failed to split document", "path", path, "error", err)
	case !res.Skipped:
		w.log.Info("Split document", "contract", res.Contract, "files", len(res.Outputs))
	}
}

// removeStale drops watches for directories that no longer exist.
func (w *Watcher) removeStale() {
	w.watched.Range(func(key, _ any) bool {
		path := key.(string)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			w.fsWatch.Remove(path)
			w.watched.Delete(path)
		}
		return true
	})
}

// isChmodOnly reports events that carry nothing but a permission change.
func isChmodOnly(evt fsnotify.Event) bool {
	return evt.Op == fsnotify.Chmod
}
