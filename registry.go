package funnel

import (
	"sync"

	"golang.org/x/exp/slices"
)

// registry is the set of callbacks subscribed to a single fault channel.
type registry[E any] struct {
	mu        sync.Mutex
	nextID    int
	callbacks []subscription[E]
}

type subscription[E any] struct {
	id int
	f  func(E)
}

// add registers f and returns a function that removes it again. The returned function may be called
// any number of times.
func (r *registry[E]) add(f func(E)) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID += 1
	r.callbacks = append(r.callbacks, subscription[E]{id: id, f: f})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		idx := slices.IndexFunc(r.callbacks, func(s subscription[E]) bool { return s.id == id })
		if idx != -1 {
			r.callbacks = slices.Delete(r.callbacks, idx, idx+1)
		}
	}
}

// emit calls every registered callback with e, in registration order.
//
// The lock is not held while callbacks run, so callbacks may subscribe, unsubscribe, or emit again.
// Callbacks that are removed during emit may still be called for it.
func (r *registry[E]) emit(e E) int {
	r.mu.Lock()
	callbacks := slices.Clone(r.callbacks)
	r.mu.Unlock()

	for _, s := range callbacks {
		s.f(e)
	}
	return len(callbacks)
}
