package funnel

import (
	"context"
	"sync/atomic"
)

// Dispatcher runs work on the UI loop and turns panics in that work into fault channel events.
//
// For every fault, callbacks registered for the filter channel run first. Unless one of them clears
// RequestCatch, callbacks registered for the fault channel run next, and if one of them sets Handled
// the loop carries on with the next item. Otherwise the fault escalates: by default the Dispatcher
// panics again with the *Fault, letting it crash the loop; a [Runtime] reroutes escalated faults to
// its unobserved fault channel.
//
// All of that happens synchronously on the UI goroutine, from within the deferred recovery of the
// faulting work item, so callbacks see the stack at the time of the panic.
type Dispatcher struct {
	loop Poster

	// id of the goroutine that last ran posted work, or zero
	uiGoroutine atomic.Uint64

	filters  registry[*DispatcherFilterEvent]
	handlers registry[*DispatcherFaultEvent]

	escalate atomic.Pointer[func(*Fault)]
}

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// Escalate sets the function called for faults that weren't caught or weren't handled. It runs on
// the UI goroutine, from within the deferred recovery of the faulting work item.
func Escalate(f func(*Fault)) DispatcherOption {
	return func(d *Dispatcher) {
		d.escalate.Store(&f)
	}
}

// NewDispatcher creates a Dispatcher scheduling onto loop.
func NewDispatcher(loop Poster, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{loop: loop}
	for _, o := range opts {
		o(d)
	}
	return d
}

// BeginInvoke schedules fn to run on the UI loop and returns immediately.
func (d *Dispatcher) BeginInvoke(fn func()) {
	d.loop.Post(d.onLoop(fn))
}

// Invoke runs fn on the UI loop and waits for it to finish, returning early with ctx.Err() if the
// context is canceled. If the caller is already on the UI goroutine, fn runs immediately.
//
// A fault raised by fn is funneled like any other; Invoke still returns nil once fn has finished.
func (d *Dispatcher) Invoke(ctx context.Context, fn func()) error {
	if d.CheckAccess() {
		d.execute(fn)
		return nil
	}

	done := make(chan struct{})
	d.loop.Post(d.onLoop(func() {
		defer close(done)
		fn()
	}))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wrap returns a function that runs fn with the Dispatcher's fault handling. It's meant for
// callbacks that a UI toolkit already invokes on its own loop, like button handlers.
//
// Running a wrapped function doesn't tell the Dispatcher which goroutine the UI loop is on; only
// work scheduled with BeginInvoke or Invoke does.
func (d *Dispatcher) Wrap(fn func()) func() {
	return func() {
		d.execute(fn)
	}
}

// CheckAccess reports whether the caller is on the UI goroutine. It returns false until the loop has
// run work scheduled by [Dispatcher.BeginInvoke] or [Dispatcher.Invoke].
func (d *Dispatcher) CheckAccess() bool {
	ui := d.uiGoroutine.Load()
	return ui != 0 && ui == goid()
}

// onLoop returns the function to post for fn. The goroutine the Poster runs it on is the UI
// goroutine.
func (d *Dispatcher) onLoop(fn func()) func() {
	return func() {
		if id := goid(); id != 0 {
			d.uiGoroutine.Store(id)
		}
		d.execute(fn)
	}
}

func (d *Dispatcher) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.fault(normalize(r, recoveredTrace(1)))
		}
	}()
	fn()
}

// fault must be called by the deferred recovery in execute
func (d *Dispatcher) fault(f *Fault) {
	filter := &DispatcherFilterEvent{Fault: f, RequestCatch: true}
	d.filters.emit(filter)

	if filter.RequestCatch {
		ev := &DispatcherFaultEvent{Fault: f}
		d.handlers.emit(ev)
		if ev.Handled {
			return
		}
	}

	if esc := d.escalate.Load(); esc != nil {
		(*esc)(f)
		return
	}
	panic(f)
}

func (d *Dispatcher) setEscalation(f func(*Fault)) {
	d.escalate.Store(&f)
}
