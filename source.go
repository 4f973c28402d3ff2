package funnel

import "sync/atomic"

// FaultSource is the set of fault-reporting channels of a host runtime. [Runtime] is the host
// provided by this package; tests can substitute their own.
//
// Each method registers a callback and returns a function that removes it.
type FaultSource interface {
	// OnUnobservedFault registers for faults that escaped a goroutine without being caught. The
	// callback runs on the faulting goroutine.
	OnUnobservedFault(func(*UnobservedFaultEvent)) (unsubscribe func())
	// OnUIThreadFault registers for faults raised by work on the UI loop. The callback runs on the
	// UI goroutine.
	OnUIThreadFault(func(*DispatcherFaultEvent)) (unsubscribe func())
	// OnUIThreadFilter registers for the catch decision for faults on the UI loop. It runs before
	// any OnUIThreadFault callback for the same fault, on the same goroutine.
	OnUIThreadFilter(func(*DispatcherFilterEvent)) (unsubscribe func())
	// OnAbandonedAsyncFault registers for faulted async units that were reclaimed without their
	// fault ever being retrieved. The callback runs on whichever goroutine reclaims the unit.
	OnAbandonedAsyncFault(func(*AbandonedFaultEvent)) (unsubscribe func())
}

// UnobservedFaultEvent is the payload of the unobserved fault channel.
type UnobservedFaultEvent struct {
	// Value is the payload that escaped. It is not necessarily an error.
	Value any
	// Stack is the stack of the faulting goroutine, starting at the frame that panicked.
	Stack StackTrace
	// IsTerminating is true if the runtime ends the process once the event has been handled.
	IsTerminating bool
}

// DispatcherFilterEvent is the payload of the UI loop filter channel.
type DispatcherFilterEvent struct {
	Fault *Fault
	// RequestCatch starts out true. If any callback leaves it false, no DispatcherFaultEvent is
	// emitted and the fault escalates to the runtime's default behavior.
	RequestCatch bool
}

// DispatcherFaultEvent is the payload of the UI loop fault channel.
type DispatcherFaultEvent struct {
	Fault *Fault
	// Handled must be set for the loop to keep running. Otherwise the fault escalates once all
	// callbacks have returned.
	Handled bool
}

// AbandonedFaultEvent is the payload of the abandoned async unit channel.
type AbandonedFaultEvent struct {
	Fault *Fault
	// Unit is the name the async unit was created with.
	Unit string

	observed atomic.Bool
}

// SetObserved marks the fault as observed. It is idempotent.
func (e *AbandonedFaultEvent) SetObserved() {
	e.observed.Store(true)
}

// Observed reports whether SetObserved has been called.
func (e *AbandonedFaultEvent) Observed() bool {
	return e.observed.Load()
}
