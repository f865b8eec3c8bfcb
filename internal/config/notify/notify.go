// Package notify fans out values to subscribed observers.
//
// A Notifier delivers either synchronously on the caller's goroutine or,
// with WithAsync, through a buffered channel drained by one delivery
// goroutine so producers never wait on observers. A filter can veto
// values at delivery time, and Barrier runs a function with delivery
// paused, which lets owners change what the filter accepts atomically.
package notify

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/settingsd/internal/logging"
)

// Observer receives delivered values. Observers must not block for long
// and must not call Barrier on the notifier delivering to them.
type Observer[T any] func(value T)

// Subscription represents an active observer subscription.
type Subscription struct {
	id     string
	cancel func(id string)
	once   sync.Once
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel(s.id)
		}
	})
}

// Stats reports delivery counters.
type Stats struct {
	Observers int
	Delivered int64
	Filtered  int64
	Dropped   int64
	Panics    int64
	Pending   int
}

// Notifier manages subscriptions and delivers values to them.
type Notifier[T any] struct {
	mu        sync.RWMutex
	observers map[string]Observer[T]

	// deliverMu is held for the whole of each delivery, filter included.
	deliverMu sync.Mutex
	filter    func(T) bool

	async  bool
	buffer chan T
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool

	logger *logging.Logger

	delivered atomic.Int64
	filtered  atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
}

// Option configures a Notifier.
type Option[T any] func(*Notifier[T])

// WithAsync enables asynchronous delivery with the given buffer size.
// Values arriving while the buffer is full are dropped and counted.
func WithAsync[T any](bufferSize int) Option[T] {
	return func(n *Notifier[T]) {
		if bufferSize > 0 {
			n.async = true
			n.buffer = make(chan T, bufferSize)
		}
	}
}

// WithFilter sets a predicate evaluated at delivery time. Values for
// which it returns false are discarded.
func WithFilter[T any](filter func(T) bool) Option[T] {
	return func(n *Notifier[T]) {
		n.filter = filter
	}
}

// WithLogger sets the logger used to report observer panics and drops.
func WithLogger[T any](l *logging.Logger) Option[T] {
	return func(n *Notifier[T]) {
		n.logger = logging.OrNull(l)
	}
}

// New creates a new Notifier.
func New[T any](opts ...Option[T]) *Notifier[T] {
	n := &Notifier[T]{
		observers: make(map[string]Observer[T]),
		done:      make(chan struct{}),
		logger:    logging.Null,
	}

	for _, opt := range opts {
		opt(n)
	}

	if n.async {
		n.wg.Add(1)
		go n.processAsync()
	}

	return n
}

// Subscribe registers an observer for every delivered value.
func (n *Notifier[T]) Subscribe(observer Observer[T]) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := uuid.NewString()
	n.observers[id] = observer

	return &Subscription{id: id, cancel: n.unsubscribe}
}

// Notify hands value to the observers. In async mode it never blocks.
func (n *Notifier[T]) Notify(value T) {
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return
	}

	if !n.async {
		n.deliver(value)
		return
	}

	select {
	case n.buffer <- value:
	case <-n.done:
	default:
		n.dropped.Add(1)
		n.logger.Warn("notification buffer full, dropping value")
	}
}

// Barrier runs fn while no delivery is in progress. Deliveries that
// start after Barrier returns observe whatever state fn changed.
func (n *Notifier[T]) Barrier(fn func()) {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()
	fn()
}

// Stats returns delivery counters.
func (n *Notifier[T]) Stats() Stats {
	n.mu.RLock()
	observers := len(n.observers)
	n.mu.RUnlock()

	return Stats{
		Observers: observers,
		Delivered: n.delivered.Load(),
		Filtered:  n.filtered.Load(),
		Dropped:   n.dropped.Load(),
		Panics:    n.panics.Load(),
		Pending:   len(n.buffer),
	}
}

// Close shuts down the notifier, delivering anything still buffered.
// It is safe to call Close multiple times.
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

func (n *Notifier[T]) unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, id)
}

func (n *Notifier[T]) deliver(value T) {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()

	if n.filter != nil && !n.filter(value) {
		n.filtered.Add(1)
		return
	}

	n.mu.RLock()
	observers := make([]Observer[T], 0, len(n.observers))
	for _, obs := range n.observers {
		observers = append(observers, obs)
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		n.call(obs, value)
	}
	n.delivered.Add(1)
}

func (n *Notifier[T]) call(obs Observer[T], value T) {
	defer func() {
		if r := recover(); r != nil {
			n.panics.Add(1)
			n.logger.Error("observer panic: %v", fmt.Sprint(r))
		}
	}()
	obs(value)
}

func (n *Notifier[T]) processAsync() {
	defer n.wg.Done()

	for {
		select {
		case value := <-n.buffer:
			n.deliver(value)
		case <-n.done:
			// Drain remaining buffered values
			for {
				select {
				case value := <-n.buffer:
					n.deliver(value)
				default:
					return
				}
			}
		}
	}
}
