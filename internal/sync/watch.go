package sync

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tree_sync/internal/fsys"
)

// Trigger holds at most one pending re-sync request.
type Trigger struct {
	ch chan struct{}
}

// NewTrigger returns a trigger with nothing pending.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Notify schedules a pass unless one is already pending.
func (t *Trigger) Notify() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// C delivers one value per pending request.
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}

// SourceWatcher turns fsnotify events under the source roots into triggers.
// fsnotify is not recursive, so every non-ignored directory is registered,
// including ones created after startup. Symbolic links are not followed.
type SourceWatcher struct {
	watcher *fsnotify.Watcher
	fs      fsys.FS
	ignore  IgnoreSet
	logger  *zap.Logger
	// files are source roots that are single files; parents holds their
	// directories, watched only for events naming one of those files.
	files   map[string]bool
	parents map[string]bool
	trees   map[string]bool
}

// NewSourceWatcher registers every root with fsnotify. fs must be the
// operating system filesystem.
func NewSourceWatcher(fs fsys.FS, roots []string, ignore IgnoreSet, logger *zap.Logger) (*SourceWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}
	w := &SourceWatcher{
		watcher: watcher,
		fs:      fs,
		ignore:  ignore,
		logger:  logger,
		files:   map[string]bool{},
		parents: map[string]bool{},
		trees:   map[string]bool{},
	}
	for _, root := range roots {
		if err := w.addRoot(root); err != nil {
			// Release the handles already taken for earlier roots.
			if closeErr := watcher.Close(); closeErr != nil {
				logger.Warn("close watcher", zap.Error(closeErr))
			}
			return nil, err
		}
	}
	return w, nil
}

func (w *SourceWatcher) addRoot(path string) error {
	kind, err := w.fs.Stat(path)
	if err != nil {
		return err
	}
	switch kind {
	case fsys.Dir:
		return w.addTree(path)
	case fsys.File:
		// The parent is watched too so a replaced file is still noticed.
		parent := filepath.Dir(path)
		for _, p := range []string{path, parent} {
			if err := w.watcher.Add(p); err != nil {
				return errors.Wrapf(err, "watch %q", p)
			}
		}
		w.files[path] = true
		w.parents[parent] = true
	}
	return nil
}

func (w *SourceWatcher) addTree(path string) error {
	if err := w.watcher.Add(path); err != nil {
		return errors.Wrapf(err, "watch %q", path)
	}
	w.trees[path] = true
	names, err := w.fs.ReadDir(path)
	if err != nil {
		return err
	}
	for _, name := range names {
		if w.ignore.Matches(name) {
			continue
		}
		child := filepath.Join(path, name)
		childKind, err := w.fs.Lstat(child)
		if err != nil {
			return err
		}
		if childKind == fsys.Dir {
			if err := w.addTree(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// relevant filters out attribute-only changes, ignored names and siblings
// of single-file roots.
func (w *SourceWatcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	dir := filepath.Dir(event.Name)
	if w.parents[dir] && !w.trees[dir] && !w.files[event.Name] {
		return false
	}
	return !w.ignore.Matches(filepath.Base(event.Name))
}

// Run forwards relevant events to trigger until ctx is done or the watcher
// is closed.
func (w *SourceWatcher) Run(ctx context.Context, trigger *Trigger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if kind, err := w.fs.Lstat(event.Name); err == nil && kind == fsys.Dir {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			w.logger.Debug("source changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			trigger.Notify()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Close releases the fsnotify handles; Run then returns.
func (w *SourceWatcher) Close() error {
	return w.watcher.Close()
}
