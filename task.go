package funnel

import (
	"context"
	"sync"
)

// Task is an async unit of work with a result of type T, owned by a [Scope].
//
// A Task completes exactly once, either with a value or with a fault. Retrieving the fault through
// [Task.Wait] or [Task.Err] marks it observed; a faulted Task that is reclaimed by its scope without
// ever having been observed is reported on the abandoned async fault channel.
type Task[T any] struct {
	u     unit
	value T
}

// unit is the part of a Task that doesn't depend on its result type
type unit struct {
	name  string
	scope *Scope

	mu        sync.Mutex
	done      chan struct{}
	fault     *Fault
	observed  bool
	reclaimed bool
}

// NewTask creates a pending Task in the scope, to be completed by calling [Task.SetResult] or
// [Task.SetFault].
func NewTask[T any](s *Scope, name string) *Task[T] {
	t := &Task[T]{u: unit{name: name, scope: s, done: make(chan struct{})}}
	s.track(&t.u)
	return t
}

// Start runs fn on a new goroutine and returns a Task completed with its result. An error returned
// by fn, or a panic in fn, becomes the fault of the Task.
func Start[T any](s *Scope, name string, fn func() (T, error)) *Task[T] {
	t := NewTask[T](s, name)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.u.complete(normalize(r, recoveredTrace(1)), nil)
			}
		}()

		v, err := fn()
		if err != nil {
			t.u.complete(normalize(err, GetStackTrace(nil, 0)), nil)
			return
		}
		t.SetResult(v)
	}()
	return t
}

// Name returns the name the Task was created with.
func (t *Task[T]) Name() string {
	return t.u.name
}

// SetResult completes the Task with v. It returns false if the Task was already complete.
func (t *Task[T]) SetResult(v T) bool {
	return t.u.complete(nil, func() { t.value = v })
}

// SetFault completes the Task with a fault for err, capturing the caller's stack unless err is
// already a *Fault. It returns false if the Task was already complete.
//
// SetFault panics if err is nil.
func (t *Task[T]) SetFault(err error) bool {
	if err == nil {
		panic("funnel: SetFault called with nil error")
	}
	return t.u.complete(normalize(err, panicSiteTrace(1)), nil)
}

// Done returns a channel that is closed once the Task is complete.
func (t *Task[T]) Done() <-chan struct{} {
	return t.u.done
}

// Wait waits for the Task to complete and returns its result, marking any fault as observed. If ctx
// is canceled first, Wait returns ctx.Err() and the fault (if any) stays unobserved.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.u.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	if f := t.u.observe(); f != nil {
		var zero T
		return zero, f
	}
	return t.value, nil
}

// Err returns the fault of a completed Task, marking it observed. It returns nil if the Task
// hasn't completed or completed with a value.
func (t *Task[T]) Err() error {
	if !isClosed(t.u.done) {
		return nil
	}
	if f := t.u.observe(); f != nil {
		return f
	}
	return nil
}

func (u *unit) complete(f *Fault, setValue func()) bool {
	u.mu.Lock()
	if isClosed(u.done) {
		u.mu.Unlock()
		return false
	}
	u.fault = f
	if setValue != nil {
		setValue()
	}
	close(u.done)
	u.mu.Unlock()

	u.scope.finished(u)
	return true
}

func (u *unit) observe() *Fault {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.fault != nil {
		u.observed = true
	}
	return u.fault
}

// reclaim marks the unit as reclaimed, returning its fault if it should be reported as abandoned.
// It returns nil on every call after the first.
func (u *unit) reclaim() *Fault {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.reclaimed {
		return nil
	}
	u.reclaimed = true
	if u.fault == nil || u.observed {
		return nil
	}
	return u.fault
}

func (u *unit) setObserved() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.observed = true
}
