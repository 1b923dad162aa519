// Package feed implements typed in-process event feeds used to decouple the
// connection manager from its consumers.
package feed

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Kind enumerates the feeds exposed by the connection manager.
type Kind int

const (
	KindNewMessage Kind = iota
	KindReadReceipt
	KindTypingStatus
	KindError
	KindConnectionStatus
)

func (k Kind) String() string {
	switch k {
	case KindNewMessage:
		return "newMessage"
	case KindReadReceipt:
		return "readReceipt"
	case KindTypingStatus:
		return "typingStatus"
	case KindError:
		return "error"
	case KindConnectionStatus:
		return "connectionStatus"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PanicHandler is called when a subscriber panics during dispatch.
type PanicHandler func(kind Kind, recovered any)

type subscriber[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// Feed is a set of subscribers for values of type T. Publish delivers to a snapshot
// of subscribers taken when dispatch starts, in subscription order.
type Feed[T any] struct {
	kind    Kind
	onPanic PanicHandler

	mu   sync.Mutex
	subs []*subscriber[T]
}

// New creates a Feed of the given kind. onPanic may be nil.
func New[T any](kind Kind, onPanic PanicHandler) *Feed[T] {
	return &Feed[T]{kind: kind, onPanic: onPanic}
}

// Kind of the feed.
func (f *Feed[T]) Kind() Kind {
	return f.kind
}

// Subscribe registers fn and returns a function removing exactly this registration.
// The returned function can be called any number of times.
func (f *Feed[T]) Subscribe(fn func(T)) func() {
	s := &subscriber[T]{fn: fn}
	s.active.Store(true)
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return func() {
		f.remove(s)
	}
}

func (f *Feed[T]) remove(s *subscriber[T]) {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if sub == s {
			// Copy so that snapshots taken by in-flight dispatches stay intact.
			subs := make([]*subscriber[T], 0, len(f.subs)-1)
			subs = append(subs, f.subs[:i]...)
			subs = append(subs, f.subs[i+1:]...)
			f.subs = subs
			return
		}
	}
}

// Len returns the number of active subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Publish delivers v to every subscriber. A subscriber removed during this dispatch
// is not invoked after its removal.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	snapshot := f.subs
	f.mu.Unlock()
	for _, s := range snapshot {
		if !s.active.Load() {
			continue
		}
		f.call(s, v)
	}
}

func (f *Feed[T]) call(s *subscriber[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("feed", f.kind.String()).Interface("panic", r).Msg("feed subscriber panicked")
			if f.onPanic != nil {
				f.onPanic(f.kind, r)
			}
		}
	}()
	s.fn(v)
}

// StateFeed is a Feed remembering the last published value. New subscribers receive
// the current value synchronously before Subscribe returns.
//
// Every subscriber is served by one goroutine at a time and its last delivered
// value is always the latest published one. When a Publish races with another
// delivery to the same subscriber, the value is handed to the goroutine already
// delivering and intermediate values may be skipped. Subscribers may publish to
// the feed they are subscribed to.
type StateFeed[T any] struct {
	feed *Feed[T]

	mu      sync.Mutex
	current T
	subs    []*stateSubscriber[T]
}

type stateSubscriber[T any] struct {
	subscriber[T]
	// Guarded by StateFeed.mu.
	pending    T
	hasPending bool
	draining   bool
}

// NewState creates a StateFeed with an initial value.
func NewState[T any](kind Kind, initial T, onPanic PanicHandler) *StateFeed[T] {
	return &StateFeed[T]{feed: New[T](kind, onPanic), current: initial}
}

// Subscribe registers fn, immediately calls it once with the current value and
// returns the unsubscribe function.
func (f *StateFeed[T]) Subscribe(fn func(T)) func() {
	s := &stateSubscriber[T]{subscriber: subscriber[T]{fn: fn}}
	s.active.Store(true)
	f.mu.Lock()
	s.pending, s.hasPending, s.draining = f.current, true, true
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	f.drain(s)
	return func() {
		f.remove(s)
	}
}

func (f *StateFeed[T]) remove(s *stateSubscriber[T]) {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if sub == s {
			subs := make([]*stateSubscriber[T], 0, len(f.subs)-1)
			subs = append(subs, f.subs[:i]...)
			subs = append(subs, f.subs[i+1:]...)
			f.subs = subs
			return
		}
	}
}

// Publish stores v as the current value and delivers it to subscribers.
func (f *StateFeed[T]) Publish(v T) {
	f.mu.Lock()
	f.current = v
	var ready []*stateSubscriber[T]
	for _, s := range f.subs {
		s.pending, s.hasPending = v, true
		if !s.draining {
			s.draining = true
			ready = append(ready, s)
		}
	}
	f.mu.Unlock()
	for _, s := range ready {
		f.drain(s)
	}
}

// drain delivers pending values to s until none is left. The caller must have
// set s.draining.
func (f *StateFeed[T]) drain(s *stateSubscriber[T]) {
	for {
		f.mu.Lock()
		if !s.hasPending {
			s.draining = false
			f.mu.Unlock()
			return
		}
		v := s.pending
		var zero T
		s.pending, s.hasPending = zero, false
		f.mu.Unlock()
		if s.active.Load() {
			f.feed.call(&s.subscriber, v)
		}
	}
}

// Current returns the last published value.
func (f *StateFeed[T]) Current() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Len returns the number of active subscribers.
func (f *StateFeed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
