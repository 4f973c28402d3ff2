package funnel

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// Hook receives every unhandled fault that makes it through the [Handler].
//
// OnUnhandledFault may be called concurrently from different goroutines: the UI goroutine for faults
// with [OriginDispatcher], the faulting goroutine for [OriginUnobservedProcess], and the reclaiming
// goroutine for [OriginAbandonedAsync]. Implementations that touch shared state must synchronize
// themselves, and usually marshal presentation onto the UI loop with [Dispatcher.Invoke].
//
// OnUnhandledFault must not panic. The Handler does not guard against it, and what happens next
// depends on the channel the fault came from.
type Hook interface {
	OnUnhandledFault(f *Fault)
}

// CatchFilter may be implemented by a [Hook] to decide, before a UI loop fault unwinds, whether it
// should be caught at all. Returning false lets the fault escalate to the runtime's default
// behavior, and OnUnhandledFault isn't called for it through the UI loop channel.
//
// Without a CatchFilter, every UI loop fault is caught.
type CatchFilter interface {
	ShouldCatchDispatcherFault(f *Fault) bool
}

// LogSink may be implemented by a [Hook] to receive the Handler's diagnostic messages, one per
// channel event, right before the hook is called. Log must not panic.
//
// Without a LogSink, messages go to the debug logger (see [DebugLog]).
type LogSink interface {
	Log(msg string)
}

// HookFunc adapts a function into a [Hook].
type HookFunc func(f *Fault)

func (h HookFunc) OnUnhandledFault(f *Fault) {
	h(f)
}

// Handler funnels the four fault channels of a [FaultSource] into a single [Hook].
//
// A Handler owns its subscriptions: they are all made by [New] and all removed by [Handler.Close].
// An application should have exactly one Handler, created once the UI loop exists, and keep it for
// the lifetime of the process.
type Handler struct {
	hook   Hook
	filter func(*Fault) bool
	log    func(string)
	debug  *log.Logger

	unsubscribe []func()
	closeOnce   sync.Once
}

// Option configures a [Handler].
type Option func(*Handler)

// DebugLog sets the logger used for diagnostic messages when the hook isn't a [LogSink]. The default
// logger discards everything.
func DebugLog(l *log.Logger) Option {
	return func(h *Handler) {
		h.debug = l
	}
}

// New subscribes a Handler for hook to every channel of src.
func New(src FaultSource, hook Hook, opts ...Option) *Handler {
	h := &Handler{
		hook:  hook,
		debug: log.New(io.Discard, "DEBUG ", log.LstdFlags),
	}
	for _, o := range opts {
		o(h)
	}

	h.filter = func(*Fault) bool { return true }
	if f, ok := hook.(CatchFilter); ok {
		h.filter = f.ShouldCatchDispatcherFault
	}
	h.log = func(msg string) { h.debug.Print(msg) }
	if l, ok := hook.(LogSink); ok {
		h.log = l.Log
	}

	h.unsubscribe = []func(){
		src.OnUnobservedFault(h.onUnobserved),
		src.OnUIThreadFilter(h.onFilter),
		src.OnUIThreadFault(h.onDispatcher),
		src.OnAbandonedAsyncFault(h.onAbandoned),
	}
	return h
}

// Close removes all of the Handler's subscriptions. It is idempotent.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		for _, u := range h.unsubscribe {
			u()
		}
	})
}

func (h *Handler) onUnobserved(e *UnobservedFaultEvent) {
	f := normalize(e.Value, e.Stack).withOrigin(OriginUnobservedProcess)
	h.log(fmt.Sprintf("Unhandled fault on goroutine (terminating = %t): %s", e.IsTerminating, f))
	h.hook.OnUnhandledFault(f)
}

func (h *Handler) onFilter(e *DispatcherFilterEvent) {
	e.RequestCatch = h.filter(e.Fault.withOrigin(OriginDispatcher))
}

func (h *Handler) onDispatcher(e *DispatcherFaultEvent) {
	f := e.Fault.withOrigin(OriginDispatcher)
	h.log(fmt.Sprintf("Unhandled fault on UI dispatcher: %s", f))
	h.hook.OnUnhandledFault(f)
	e.Handled = true
}

func (h *Handler) onAbandoned(e *AbandonedFaultEvent) {
	f := e.Fault.withOrigin(OriginAbandonedAsync)
	h.log(fmt.Sprintf("Unobserved fault in async unit %q: %s", e.Unit, f))
	h.hook.OnUnhandledFault(f)
	e.SetObserved()
}
