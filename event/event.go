// Package event provides typed callback fan-out with subscription tokens.
package event

import (
	"sync"
	"sync/atomic"
)

// Subscription is returned by Subscribe. Closing it detaches the handler.
// Close does not wait for an invocation already running on another
// goroutine, so the handler is guaranteed not to run after Close returns
// only when Close and Emit happen on the same goroutine. Callers in this
// module emit and close on the loop, which gives them that ordering.
type Subscription struct {
	once   sync.Once
	active atomic.Bool
	detach func()
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.active.Store(false)
		if s.detach != nil {
			s.detach()
		}
	})
}

// Active reports whether the subscription has not been closed.
func (s *Subscription) Active() bool {
	return s != nil && s.active.Load()
}

type handler[T any] struct {
	sub *Subscription
	fn  func(T)
}

// Dispatcher delivers values to its subscribers in subscription order. The
// zero value is ready to use.
type Dispatcher[T any] struct {
	lock     sync.RWMutex
	nextID   uint64
	handlers map[uint64]handler[T]
	order    []uint64
}

func (d *Dispatcher[T]) Subscribe(fn func(T)) *Subscription {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.handlers == nil {
		d.handlers = make(map[uint64]handler[T])
	}

	id := d.nextID
	d.nextID++

	sub := &Subscription{}
	sub.active.Store(true)
	sub.detach = func() { d.remove(id) }

	d.handlers[id] = handler[T]{sub, fn}
	d.order = append(d.order, id)
	return sub
}

func (d *Dispatcher[T]) remove(id uint64) {
	d.lock.Lock()
	defer d.lock.Unlock()

	delete(d.handlers, id)
	for i, other := range d.order {
		if other == id {
			d.order = append(d.order[:i:i], d.order[i+1:]...)
			break
		}
	}
}

// Emit calls every active handler with v on the calling goroutine.
// Handlers may subscribe or close subscriptions while being called; a
// handler closed earlier in the same Emit is skipped. An Emit racing a
// Close on another goroutine may still make one call.
func (d *Dispatcher[T]) Emit(v T) {
	d.lock.RLock()
	handlers := make([]handler[T], 0, len(d.order))
	for _, id := range d.order {
		handlers = append(handlers, d.handlers[id])
	}
	d.lock.RUnlock()

	for _, h := range handlers {
		if h.sub.Active() {
			h.fn(v)
		}
	}
}

// Len returns the number of subscribers.
func (d *Dispatcher[T]) Len() int {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return len(d.handlers)
}
