package funnel

// Runtime is the host side of the fault channels: it owns the UI [Dispatcher], starts worker
// goroutines, and reclaims async units. It implements [FaultSource].
//
// Go has no process-wide hook for panics, so a worker goroutine only reports to the unobserved
// fault channel if it was started with [Runtime.Go] or defers [Runtime.HandlePanics].
type Runtime struct {
	dispatcher *Dispatcher
	workers    *Tracker

	unobserved registry[*UnobservedFaultEvent]
	abandoned  registry[*AbandonedFaultEvent]

	terminate         func(value any)
	escalateAbandoned bool

	scopes *Tracker
}

// RuntimeOption configures a [Runtime].
type RuntimeOption func(*Runtime)

// Terminate sets what happens after an unobserved fault has been reported. The default re-panics
// with the original value, which ends the process.
func Terminate(f func(value any)) RuntimeOption {
	return func(rt *Runtime) {
		rt.terminate = f
	}
}

// NoTerminate makes unobserved faults non-fatal: the faulting goroutine exits once the fault has
// been reported and the process keeps running.
func NoTerminate() RuntimeOption {
	return func(rt *Runtime) {
		rt.terminate = nil
	}
}

// EscalateAbandoned makes abandoned async faults that nobody marks as observed fall through to the
// unobserved fault channel.
func EscalateAbandoned() RuntimeOption {
	return func(rt *Runtime) {
		rt.escalateAbandoned = true
	}
}

// NewRuntime creates a Runtime around the dispatcher for the UI loop.
//
// Faults that the dispatcher escalates (not caught by the filter, or not marked handled) are
// reported on the unobserved fault channel, followed by the terminate behavior.
func NewRuntime(d *Dispatcher, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		dispatcher: d,
		workers:    NewTracker("workers"),
		scopes:     NewTracker("scopes"),
		terminate:  func(v any) { panic(v) },
	}
	for _, o := range opts {
		o(rt)
	}

	d.setEscalation(func(f *Fault) {
		rt.unhandled(f, f.Stack())
	})
	return rt
}

// Dispatcher returns the dispatcher for the UI loop.
func (rt *Runtime) Dispatcher() *Dispatcher {
	return rt.dispatcher
}

// Workers returns the tracker of goroutines started by [Runtime.Go] that haven't exited yet.
func (rt *Runtime) Workers() *Tracker {
	return rt.workers
}

// Scopes returns the tracker whose children hold the pending async units of each [Scope].
func (rt *Runtime) Scopes() *Tracker {
	return rt.scopes
}

// Go starts fn on a new goroutine, reporting a panic in fn on the unobserved fault channel.
func (rt *Runtime) Go(name string, fn func()) {
	rt.workers.Add(name)
	go func() {
		defer rt.workers.Done(name)
		defer rt.HandlePanics()
		fn()
	}()
}

// HandlePanics should be deferred as the first thing in goroutines that weren't started with
// [Runtime.Go]. If the goroutine is panicking, the panic is reported on the unobserved fault
// channel and then the terminate behavior runs.
func (rt *Runtime) HandlePanics() {
	r := recover()
	if r == nil {
		return
	}
	rt.unhandled(r, recoveredTrace(1))
}

func (rt *Runtime) unhandled(v any, stack StackTrace) {
	ev := &UnobservedFaultEvent{
		Value:         v,
		Stack:         stack,
		IsTerminating: rt.terminate != nil,
	}
	rt.unobserved.emit(ev)

	if rt.terminate != nil {
		rt.terminate(v)
	}
}

func (rt *Runtime) reclaimed(ev *AbandonedFaultEvent) {
	rt.abandoned.emit(ev)
	if !ev.Observed() && rt.escalateAbandoned {
		rt.unhandled(ev.Fault, ev.Fault.Stack())
	}
}

// OnUnobservedFault implements [FaultSource].
func (rt *Runtime) OnUnobservedFault(f func(*UnobservedFaultEvent)) func() {
	return rt.unobserved.add(f)
}

// OnUIThreadFault implements [FaultSource].
func (rt *Runtime) OnUIThreadFault(f func(*DispatcherFaultEvent)) func() {
	return rt.dispatcher.handlers.add(f)
}

// OnUIThreadFilter implements [FaultSource].
func (rt *Runtime) OnUIThreadFilter(f func(*DispatcherFilterEvent)) func() {
	return rt.dispatcher.filters.add(f)
}

// OnAbandonedAsyncFault implements [FaultSource].
func (rt *Runtime) OnAbandonedAsyncFault(f func(*AbandonedFaultEvent)) func() {
	return rt.abandoned.add(f)
}
