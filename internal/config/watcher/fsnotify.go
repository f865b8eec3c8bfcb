package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/settingsd/internal/config/layer"
	"github.com/dshills/settingsd/internal/logging"
)

type fsConfig struct {
	paths   []string
	gen     uint64
	locate  func(string) layer.Location
	emit    func(Event)
	onError func(error)
	logger  *logging.Logger
}

// fsBackend is one fsnotify session for one path set. It watches the
// parent directory of every path, since editors and the settings writer
// replace files by renaming over them, and filters to the exact paths.
//
// A parent directory that does not exist yet is pending: its nearest
// existing ancestor is watched instead, and the directory is added once
// it appears.
type fsBackend struct {
	watcher *fsnotify.Watcher
	cfg     fsConfig

	// exists tracks which watched files are known to be on disk.
	// Only the event loop touches it after construction.
	exists map[string]bool

	mu        sync.Mutex
	dirs      map[string]bool
	pending   map[string]bool
	ancestors map[string]bool

	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

func newFSBackend(cfg fsConfig) (*fsBackend, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	b := &fsBackend{
		watcher:   fsw,
		cfg:       cfg,
		exists:    make(map[string]bool, len(cfg.paths)),
		dirs:      make(map[string]bool),
		pending:   make(map[string]bool),
		ancestors: make(map[string]bool),
		closeCh:   make(chan struct{}),
	}

	for _, p := range cfg.paths {
		_, statErr := os.Stat(p)
		b.exists[p] = statErr == nil
		b.pending[filepath.Dir(p)] = true
	}
	b.rearm()

	b.closedWg.Add(1)
	go b.processLoop()

	return b, nil
}

// watchedDirs returns the number of settings directories being watched.
func (b *fsBackend) watchedDirs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dirs)
}

// rearm tries to watch every pending directory. Directories that still
// cannot be watched fall back to their nearest existing ancestor. Files
// found in a newly watched directory are reported as added.
func (b *fsBackend) rearm() {
	b.mu.Lock()
	pending := make([]string, 0, len(b.pending))
	for dir := range b.pending {
		pending = append(pending, dir)
	}
	b.mu.Unlock()
	sort.Strings(pending)

	for _, dir := range pending {
		if err := b.watcher.Add(dir); err != nil {
			b.cfg.logger.Debug("not watching %s: %v", dir, err)
			b.watchAncestor(dir)
			continue
		}

		b.mu.Lock()
		delete(b.pending, dir)
		b.dirs[dir] = true
		b.mu.Unlock()

		for _, p := range b.cfg.paths {
			if filepath.Dir(p) != dir || b.exists[p] {
				continue
			}
			if _, err := os.Stat(p); err == nil {
				b.exists[p] = true
				b.send(KindAdd, p)
			}
		}
	}
}

// watchAncestor watches the closest existing directory above dir so its
// creation is noticed.
func (b *fsBackend) watchAncestor(dir string) {
	for parent := filepath.Dir(dir); ; parent = filepath.Dir(parent) {
		if info, err := os.Stat(parent); err == nil && info.IsDir() {
			b.mu.Lock()
			known := b.dirs[parent] || b.ancestors[parent]
			b.mu.Unlock()
			if known {
				return
			}
			if err := b.watcher.Add(parent); err != nil {
				b.cfg.logger.Debug("not watching %s: %v", parent, err)
				return
			}
			b.mu.Lock()
			b.ancestors[parent] = true
			b.mu.Unlock()
			return
		}
		if next := filepath.Dir(parent); next == parent {
			return
		}
	}
}

// lose moves a watched directory that disappeared back to pending and
// reports its files as removed.
func (b *fsBackend) lose(dir string) {
	b.mu.Lock()
	delete(b.dirs, dir)
	b.pending[dir] = true
	b.mu.Unlock()

	for _, p := range b.cfg.paths {
		if filepath.Dir(p) == dir && b.exists[p] {
			b.exists[p] = false
			b.send(KindRemove, p)
		}
	}
	b.rearm()
}

// leadsToPending reports whether path is a pending directory or one of
// its ancestors.
func (b *fsBackend) leadsToPending(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for dir := range b.pending {
		if dir == path || strings.HasPrefix(dir, path+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// close stops the loop, waits for it to exit and releases the fsnotify
// handle.
func (b *fsBackend) close() error {
	close(b.closeCh)
	b.closedWg.Wait()
	return b.watcher.Close()
}

func (b *fsBackend) processLoop() {
	defer b.closedWg.Done()

	for {
		select {
		case <-b.closeCh:
			return

		case fsEvent, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleFSEvent(fsEvent)

		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.cfg.onError(fmt.Errorf("fsnotify: %w", err))
		}
	}
}

func (b *fsBackend) handleFSEvent(fsEvent fsnotify.Event) {
	path := filepath.Clean(fsEvent.Name)

	b.mu.Lock()
	isDir := b.dirs[path]
	b.mu.Unlock()
	if isDir && (fsEvent.Op.Has(fsnotify.Remove) || fsEvent.Op.Has(fsnotify.Rename)) {
		b.lose(path)
		return
	}
	if fsEvent.Op.Has(fsnotify.Create) && b.leadsToPending(path) {
		b.rearm()
		return
	}

	existed, watched := b.exists[path]
	if !watched {
		return
	}

	kind, ok := classify(fsEvent.Op, existed)
	if !ok {
		return
	}

	b.exists[path] = kind != KindRemove
	b.send(kind, path)
}

func (b *fsBackend) send(kind Kind, path string) {
	// Select on closeCh so a loop being torn down never emits.
	select {
	case <-b.closeCh:
		return
	default:
	}

	b.cfg.emit(Event{
		Kind:     kind,
		Path:     path,
		Location: b.cfg.locate(path),
		Time:     time.Now(),
		gen:      b.cfg.gen,
	})
}

// classify normalizes an fsnotify operation for a path that did or did
// not exist before. Chmod-only events are ignored.
func classify(op fsnotify.Op, existed bool) (Kind, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return KindRemove, true
	case op.Has(fsnotify.Create):
		if existed {
			return KindChange, true
		}
		return KindAdd, true
	case op.Has(fsnotify.Write):
		return KindChange, true
	default:
		return 0, false
	}
}
