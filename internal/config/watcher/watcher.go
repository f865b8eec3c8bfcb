// Package watcher reports changes to the settings files.
//
// A Watcher observes a set of file paths through fsnotify and delivers
// add, change and remove events to subscribers. The path set can be
// replaced at any time with UpdatePaths; once it returns, no event from
// the previous set is delivered.
package watcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/settingsd/internal/config/layer"
	"github.com/dshills/settingsd/internal/config/notify"
	"github.com/dshills/settingsd/internal/logging"
)

// ErrWatcherClosed is returned by operations on a closed Watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// Kind is the normalized kind of a file change.
type Kind uint8

const (
	// KindAdd means a watched file appeared.
	KindAdd Kind = iota + 1
	// KindChange means a watched file's contents were replaced or modified.
	KindChange
	// KindRemove means a watched file disappeared.
	KindRemove
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindChange:
		return "change"
	case KindRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindAdd, KindChange, KindRemove:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid kind %d", k)
	}
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "add":
		*k = KindAdd
	case "change":
		*k = KindChange
	case "remove":
		*k = KindRemove
	default:
		return fmt.Errorf("unknown kind %q", text)
	}
	return nil
}

// Event describes one change to a watched file.
type Event struct {
	Kind     Kind           `json:"kind"`
	Path     string         `json:"path"`
	Location layer.Location `json:"location,omitempty"`
	Time     time.Time      `json:"time"`

	gen uint64
}

// State is the watcher lifecycle state.
type State uint8

const (
	// StateStopped means no paths are observed.
	StateStopped State = iota
	// StateWatching means a non-empty path set is observed.
	StateWatching
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateWatching:
		return "watching"
	default:
		return "unknown"
	}
}

// Observer receives change events.
type Observer = notify.Observer[Event]

// Stats reports watcher status.
type Stats struct {
	State        State
	WatchedPaths int
	WatchedDirs  int
	Generation   uint64
	TotalEvents  int64
	Delivered    int64
	Dropped      int64
	Stale        int64
	Errors       int64
	LastError    error
	Restarts     int64
	StartTime    time.Time
}

// Watcher observes a replaceable set of settings file paths.
// Methods are safe for concurrent use.
type Watcher struct {
	mu       sync.Mutex
	state    State
	paths    []string
	backend  *fsBackend
	closed   bool
	started  time.Time
	restarts int64

	gen      atomic.Uint64
	notifier *notify.Notifier[Event]

	locate     func(path string) layer.Location
	logger     *logging.Logger
	bufferSize int

	totalEvents atomic.Int64
	totalErrors atomic.Int64
	errMu       sync.Mutex
	lastError   error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		w.logger = logging.OrNull(l).WithComponent("watcher")
	}
}

// WithLocator sets the function that tags event paths with a location.
func WithLocator(locate func(path string) layer.Location) Option {
	return func(w *Watcher) {
		w.locate = locate
	}
}

// WithBufferSize sets the delivery buffer size.
func WithBufferSize(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.bufferSize = n
		}
	}
}

// New creates a stopped Watcher.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		logger:     logging.Null,
		locate:     func(string) layer.Location { return 0 },
		bufferSize: 256,
	}

	for _, opt := range opts {
		opt(w)
	}

	w.notifier = notify.New(
		notify.WithAsync[Event](w.bufferSize),
		notify.WithFilter(w.current),
		notify.WithLogger[Event](w.logger),
	)

	return w
}

// Subscribe registers an observer for change events. Observers run on the
// delivery goroutine and must not call back into the Watcher.
func (w *Watcher) Subscribe(observer Observer) *notify.Subscription {
	return w.notifier.Subscribe(observer)
}

// Start begins observing paths, replacing any current set. An empty set
// leaves the watcher stopped.
func (w *Watcher) Start(paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	w.stopLocked()
	return w.startLocked(paths)
}

// Stop stops observing. Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	w.stopLocked()
	return nil
}

// UpdatePaths replaces the observed set: a full Stop followed by Start.
func (w *Watcher) UpdatePaths(paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	w.stopLocked()
	w.restarts++
	return w.startLocked(paths)
}

// Close stops the watcher and its delivery goroutine.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.stopLocked()
	w.closed = true
	w.mu.Unlock()

	w.notifier.Close()
	return nil
}

// State returns the lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Paths returns a copy of the current watch path set.
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}

// Stats returns watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	st := Stats{
		State:        w.state,
		WatchedPaths: len(w.paths),
		Generation:   w.gen.Load(),
		Restarts:     w.restarts,
		StartTime:    w.started,
	}
	if w.backend != nil {
		st.WatchedDirs = w.backend.watchedDirs()
	}
	w.mu.Unlock()

	ns := w.notifier.Stats()
	st.Delivered = ns.Delivered
	st.Dropped = ns.Dropped
	st.Stale = ns.Filtered
	st.TotalEvents = w.totalEvents.Load()
	st.Errors = w.totalErrors.Load()

	w.errMu.Lock()
	st.LastError = w.lastError
	w.errMu.Unlock()

	return st
}

func (w *Watcher) startLocked(paths []string) error {
	clean := normalizePaths(paths)
	if len(clean) == 0 {
		return nil
	}

	var gen uint64
	w.notifier.Barrier(func() {
		gen = w.gen.Add(1)
	})

	backend, err := newFSBackend(fsConfig{
		paths:   clean,
		gen:     gen,
		locate:  w.locate,
		emit:    w.emit,
		onError: w.recordError,
		logger:  w.logger,
	})
	if err != nil {
		w.recordError(err)
		return fmt.Errorf("starting watcher: %w", err)
	}

	w.backend = backend
	w.paths = clean
	w.state = StateWatching
	w.started = time.Now()

	w.logger.Debug("watching %d paths in %d directories (generation %d)", len(clean), backend.watchedDirs(), gen)
	return nil
}

// stopLocked tears the backend down and waits for its loop to exit, then
// retires the generation so anything it already queued is discarded.
func (w *Watcher) stopLocked() {
	if w.backend != nil {
		if err := w.backend.close(); err != nil {
			w.recordError(err)
		}
		w.backend = nil
	}

	w.notifier.Barrier(func() {
		w.gen.Add(1)
	})

	w.paths = nil
	w.state = StateStopped
}

func (w *Watcher) current(ev Event) bool {
	return ev.gen == w.gen.Load()
}

func (w *Watcher) emit(ev Event) {
	w.totalEvents.Add(1)
	w.notifier.Notify(ev)
}

func (w *Watcher) recordError(err error) {
	w.totalErrors.Add(1)
	w.errMu.Lock()
	w.lastError = err
	w.errMu.Unlock()
	w.logger.Warn("%v", err)
}

// normalizePaths cleans paths and drops empties and duplicates, keeping
// the first occurrence order.
func normalizePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		c := filepath.Clean(p)
		if abs, err := filepath.Abs(c); err == nil {
			c = abs
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
